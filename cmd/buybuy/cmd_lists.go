package main

import (
	"context"
	"fmt"

	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"github.com/MariuszDW/BuyBuy-sub001/internal/store"
	"github.com/spf13/cobra"
)

func newListsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Show and edit shopping lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				rows, err := listRows(cmd.Context(), a.shopping)
				if err != nil {
					return err
				}
				printLists(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
	cmd.AddCommand(
		newListsAddCmd(flags),
		newListsEditCmd(flags),
		newListsRemoveCmd(flags),
		newListsOrderCmd(flags),
	)
	return cmd
}

func listRows(ctx context.Context, s *store.ShoppingStore) ([]listRow, error) {
	lists, err := s.FetchAllLists(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]listRow, 0, len(lists))
	for _, l := range lists {
		items, err := s.FetchItems(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		row := listRow{list: l, total: len(items)}
		for _, item := range items {
			if item.Status == model.ItemStatusPending {
				row.pending++
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func newListsAddCmd(flags *globalFlags) *cobra.Command {
	var note, color string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				list := model.ShoppingList{Name: args[0], Color: model.ParseListColor(color)}
				if note != "" {
					list.Note = &note
				}
				lists, err := a.shopping.FetchAllLists(cmd.Context())
				if err != nil {
					return err
				}
				list.SortOrder = len(lists)

				added, err := a.shopping.AddList(cmd.Context(), list)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), added.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	cmd.Flags().StringVar(&color, "color", "", "red, orange, yellow, green, blue, purple or gray")
	return cmd
}

func newListsEditCmd(flags *globalFlags) *cobra.Command {
	var name, note, color string
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Rename a list or change its note or color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				list, err := a.shopping.FetchList(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if list == nil {
					return model.NotFound("list", args[0])
				}
				if cmd.Flags().Changed("name") {
					list.Name = name
				}
				if cmd.Flags().Changed("note") {
					list.Note = &note
					if note == "" {
						list.Note = nil
					}
				}
				if cmd.Flags().Changed("color") {
					list.Color = model.ParseListColor(color)
				}
				_, err = a.shopping.UpdateList(cmd.Context(), *list)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&note, "note", "", "new note, empty to clear")
	cmd.Flags().StringVar(&color, "color", "", "new color")
	return cmd
}

func newListsRemoveCmd(flags *globalFlags) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "rm ID...",
		Short: "Delete lists, moving their items to the trash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := store.SoftDeleteItems
			if cascade {
				policy = store.CascadeItems
			}
			return withApp(cmd.Context(), flags, func(a *app) error {
				return a.shopping.DeleteLists(cmd.Context(), args, policy)
			})
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "delete the items too instead of trashing them")
	return cmd
}

func newListsOrderCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "order ID...",
		Short: "Set the display order of lists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				return a.shopping.ReorderLists(cmd.Context(), args)
			})
		},
	}
}
