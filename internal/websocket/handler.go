package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWatch upgrades the request and streams changes until the client
// goes away. The optional "list" query parameter narrows the feed to one
// list. originPatterns limits cross-origin clients; none allows same-origin
// only.
func HandleWatch(hub *Hub, originPatterns ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			hub.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, r.URL.Query().Get("list")).Run(r.Context())
		conn.Close(ws.StatusNormalClosure, "")
	}
}
