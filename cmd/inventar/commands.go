package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erazemk/inventar/internal/client"
	"github.com/erazemk/inventar/internal/lifecycle"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reader := bufio.NewReader(a.in)

			if username == "" {
				last, _ := store.GetSetting(ctx, a.db, store.SettingLastUsername)
				u, err := prompt(a, reader, "Username", last)
				if err != nil {
					return err
				}
				username = u
			}
			if password == "" {
				p, err := prompt(a, reader, "Password", "")
				if err != nil {
					return err
				}
				password = p
			}

			if err := a.auth.Login(ctx, username, password); err != nil {
				return fmt.Errorf("logging in: %w", err)
			}
			if err := store.SetSetting(ctx, a.db, store.SettingLastUsername, username); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s.\n", username)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func prompt(a *app, r *bufio.Reader, label, fallback string) (string, error) {
	if fallback != "" {
		fmt.Fprintf(a.errOut, "%s [%s]: ", label, fallback)
	} else {
		fmt.Fprintf(a.errOut, "%s: ", label)
	}
	line, err := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" && fallback != "" {
		return fallback, nil
	}
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}
		return "", fmt.Errorf("%s required", strings.ToLower(label))
	}
	return line, nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if _, err := a.auth.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		}),
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			role := a.auth.Role()
			if role == "" {
				role = "unknown"
			}
			fmt.Fprintf(a.out, "%s (%s)\n", a.auth.Username(), role)
			return nil
		}),
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the catalog and store it for offline use",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			if err := a.cache.Sync(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Synced %d items.\n", len(a.cache.Items()))
			return nil
		}),
	}
}

func newItemsCmd(a *app) *cobra.Command {
	var search, status string
	var remote bool
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List items with their lock state",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.session(ctx); err != nil {
				return err
			}

			if remote {
				items, err := a.api.ListItems(ctx, search)
				if err != nil {
					return err
				}
				rows := make([]rowView, 0, len(items))
				for _, it := range items {
					rows = append(rows, rowView{Item: it, Holder: string(it.LockedBy)})
				}
				printItems(a.out, rows, a.auth.Username())
				return nil
			}

			if err := a.loadCatalog(ctx); err != nil {
				return err
			}
			var filter func(model.Item) bool
			if status != "" {
				s, err := model.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = func(it model.Item) bool { return it.Status == s }
			}
			keep := make(map[int64]bool)
			for _, it := range a.cache.Search(search) {
				keep[it.ID] = filter == nil || filter(it)
			}

			var rows []rowView
			for _, r := range a.cache.View(a.auth.Username()) {
				if keep[r.ID] {
					rows = append(rows, rowView{Item: r.Item, Holder: r.Holder, Mine: r.Mine})
				}
			}
			printItems(a.out, rows, a.auth.Username())
			return nil
		}),
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by name, brand, serial, location or person")
	cmd.Flags().StringVar(&status, "status", "", "only items in this status")
	cmd.Flags().BoolVar(&remote, "remote", false, "let the backend do the search")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an item with its history",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}
			item, ok := a.cache.Item(id)
			if !ok {
				return fmt.Errorf("item %d not found", id)
			}
			holder := ""
			if l, ok := a.locks.Holder(id); ok {
				holder = l.User
			}
			actions, _ := a.runner.Actions(id)
			printItem(a.out, item, holder, actions)
			return nil
		}),
	}
}

func newCountersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "Show how many items wait for attention",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			c, err := a.api.StatusCounters(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "to receive: %d\nto repair:  %d\nissued:     %d\n", c.ToReceive, c.ToRepair, c.Issued)
			return nil
		}),
	}
}

func newActionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "actions <id>",
		Short: "List the actions available for an item",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}
			actions, err := a.runner.Actions(id)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				fmt.Fprintln(a.out, "No actions available.")
				return nil
			}
			for _, act := range actions {
				fmt.Fprintln(a.out, act)
			}
			return nil
		}),
	}
}

func newDoCmd(a *app) *cobra.Command {
	var p lifecycle.Params
	var brigade int64
	names := make([]string, 0, len(lifecycle.All()))
	for _, act := range lifecycle.All() {
		names = append(names, string(act))
	}

	cmd := &cobra.Command{
		Use:   "do <action> <id>",
		Short: "Perform a lifecycle action on an item",
		Long: "Perform a lifecycle action on an item. The item is locked for the duration\n" +
			"of the action and released afterwards.\n\nActions: " + strings.Join(names, ", "),
		Args: cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			action, err := lifecycle.ParseAction(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("brigade") {
				p.Brigade = &brigade
			}

			ctx := cmd.Context()
			if err := a.session(ctx); err != nil {
				return err
			}
			if err := a.loadCatalog(ctx); err != nil {
				return err
			}
			item, err := a.runner.Run(ctx, id, action, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Item %d (%s) is now %s.\n", item.ID, item.Name, statusLabel(item.Status))
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&p.Responsible, "responsible", "", "responsible person (transfer)")
	f.StringVar(&p.Location, "location", "", "location (transfer, confirm-repair)")
	f.Int64Var(&brigade, "brigade", 0, "brigade id (issue-to-work)")
	f.StringVar(&p.InvoiceNumber, "invoice", "", "invoice number (confirm-repair)")
	f.StringVar(&p.Comment, "comment", "", "comment (send-to-service, return-from-service)")
	f.StringVar(&p.Reason, "reason", "", "reason (write-off)")
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	var in client.NewItem
	var serial string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add an item",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(in.Name) == "" {
				return fmt.Errorf("--name is required")
			}
			if serial != "" {
				in.Serial = &serial
			}
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			item, err := a.runner.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created item %d (%s).\n", item.ID, item.Name)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "item name")
	f.StringVar(&serial, "serial", "", "serial number")
	f.StringVar(&in.Brand, "brand", "", "brand")
	f.StringVar(&in.Responsible, "responsible", "", "responsible person")
	f.StringVar(&in.Location, "location", "", "location")
	f.IntVar(&in.Qty, "qty", 1, "quantity")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var name, serial, brand string
	var qty int
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change item details under the item lock",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var u client.Update
			f := cmd.Flags()
			if f.Changed("name") {
				u.Name = &name
			}
			if f.Changed("serial") {
				u.Serial = &serial
			}
			if f.Changed("brand") {
				u.Brand = &brand
			}
			if f.Changed("qty") {
				u.Qty = &qty
			}
			if u == (client.Update{}) {
				return fmt.Errorf("nothing to change")
			}

			ctx := cmd.Context()
			if err := a.session(ctx); err != nil {
				return err
			}
			if err := a.loadCatalog(ctx); err != nil {
				return err
			}
			item, err := a.runner.Edit(ctx, id, u)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated item %d (%s).\n", item.ID, item.Name)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "item name")
	f.StringVar(&serial, "serial", "", "serial number")
	f.StringVar(&brand, "brand", "", "brand")
	f.IntVar(&qty, "qty", 0, "quantity")
	return cmd
}

func newLockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <id>",
		Short: "Lock an item for editing",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			l, err := a.locks.Acquire(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Item %d locked by %s.\n", id, l.User)
			return nil
		}),
	}
}

func newUnlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id>",
		Short: "Release an item lock",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.session(cmd.Context()); err != nil {
				return err
			}
			if err := a.locks.Release(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Item %d unlocked.\n", id)
			return nil
		}),
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}
