package model

import (
	"fmt"
	"strings"
)

type ItemUnit string

const (
	UnitPiece      ItemUnit = "piece"
	UnitKilogram   ItemUnit = "kilogram"
	UnitGram       ItemUnit = "gram"
	UnitLiter      ItemUnit = "liter"
	UnitMilliliter ItemUnit = "milliliter"
	UnitPack       ItemUnit = "pack"
	UnitBottle     ItemUnit = "bottle"
	UnitCan        ItemUnit = "can"
	UnitBox        ItemUnit = "box"
	UnitDozen      ItemUnit = "dozen"
	UnitPound      ItemUnit = "pound"
	UnitOunce      ItemUnit = "ounce"
)

var unitSymbols = map[ItemUnit]string{
	UnitPiece:      "pcs",
	UnitKilogram:   "kg",
	UnitGram:       "g",
	UnitLiter:      "l",
	UnitMilliliter: "ml",
	UnitPack:       "pack",
	UnitBottle:     "bottle",
	UnitCan:        "can",
	UnitBox:        "box",
	UnitDozen:      "dozen",
	UnitPound:      "lb",
	UnitOunce:      "oz",
}

// Symbol returns the short display symbol, e.g. "kg".
func (u ItemUnit) Symbol() string {
	if s, ok := unitSymbols[u]; ok {
		return s
	}
	return string(u)
}

func (u ItemUnit) Valid() bool {
	_, ok := unitSymbols[u]
	return ok
}

// ParseUnit accepts a unit name ("liter") or its symbol ("l"), case-insensitive.
func ParseUnit(s string) (ItemUnit, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if u := ItemUnit(s); u.Valid() {
		return u, nil
	}
	for u, sym := range unitSymbols {
		if sym == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q", s)
}
