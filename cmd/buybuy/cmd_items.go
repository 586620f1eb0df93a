package main

import (
	"fmt"

	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newItemsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items LIST_ID",
		Short: "Show and edit the items of a list",
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
				items, err := a.shopping.FetchItems(cmd.Context(), list.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(list.Name))
				printItems(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	cmd.AddCommand(
		newItemsAddCmd(flags),
		newItemsStatusCmd(flags),
		newItemsMoveCmd(flags),
		newItemsTrashCmd(flags),
		newItemsRestoreCmd(flags),
		newItemsRemoveCmd(flags),
		newItemsOrderCmd(flags),
	)
	return cmd
}

func parseDecimal(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, model.Invalid(field, fmt.Sprintf("%q is not a number", s))
	}
	return &d, nil
}

func newItemsAddCmd(flags *globalFlags) *cobra.Command {
	var note, qty, unit, price string
	cmd := &cobra.Command{
		Use:   "add LIST_ID NAME",
		Short: "Add an item to a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID := args[0]
			item := model.ShoppingItem{ListID: &listID, Name: args[1], Note: note}

			var err error
			if item.Quantity, err = parseDecimal("quantity", qty); err != nil {
				return err
			}
			if item.UnitPrice, err = parseDecimal("unit_price", price); err != nil {
				return err
			}
			if unit != "" {
				u, err := model.ParseUnit(unit)
				if err != nil {
					return model.Invalid("unit", err.Error())
				}
				item.Unit = &u
			}

			return withApp(cmd.Context(), flags, func(a *app) error {
				items, err := a.shopping.FetchItems(cmd.Context(), listID)
				if err != nil {
					return err
				}
				item.SortOrder = len(items)

				added, err := a.shopping.AddItem(cmd.Context(), item)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), added.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	cmd.Flags().StringVar(&qty, "qty", "", "quantity, e.g. 1.5")
	cmd.Flags().StringVar(&unit, "unit", "", "unit name or symbol, e.g. kg")
	cmd.Flags().StringVar(&price, "price", "", "price per unit")
	return cmd
}

func newItemsStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status ITEM_ID pending|purchased|inactive",
		Short: "Change the status of an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				item, err := a.shopping.FetchItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return model.NotFound("item", args[0])
				}
				item.Status = model.ItemStatus(args[1])
				_, err = a.shopping.UpdateItem(cmd.Context(), *item)
				return err
			})
		},
	}
}

func newItemsMoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "move ITEM_ID LIST_ID",
		Short: "Move an item to another list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				item, err := a.shopping.FetchItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return model.NotFound("item", args[0])
				}
				item.ListID = &args[1]
				_, err = a.shopping.UpdateItem(cmd.Context(), *item)
				return err
			})
		},
	}
}

func newItemsTrashCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "trash ITEM_ID",
		Short: "Move an item to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				return a.shopping.SoftDeleteItem(cmd.Context(), args[0])
			})
		},
	}
}

func newItemsRestoreCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ITEM_ID LIST_ID",
		Short: "Take an item out of the trash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				return a.shopping.RestoreItem(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func newItemsRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ITEM_ID...",
		Short: "Delete items permanently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				for _, id := range args {
					if err := a.shopping.DeleteItem(cmd.Context(), id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newItemsOrderCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "order LIST_ID ITEM_ID...",
		Short: "Set the display order of a list's items",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				return a.shopping.ReorderItems(cmd.Context(), args[0], args[1:])
			})
		},
	}
}

func newTrashCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Show trashed items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				items, err := a.shopping.FetchDeletedItems(cmd.Context())
				if err != nil {
					return err
				}
				printTrash(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}

	var all bool
	clean := &cobra.Command{
		Use:   "clean",
		Short: "Purge trashed items older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				retention := a.cfg.TrashRetention
				if all {
					retention = 0
				}
				res, err := a.shopping.CleanOrphanedItems(cmd.Context(), retention)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d items\n", res.Removed)
				return nil
			})
		},
	}
	clean.Flags().BoolVar(&all, "all", false, "empty the whole trash")
	cmd.AddCommand(clean)
	return cmd
}
