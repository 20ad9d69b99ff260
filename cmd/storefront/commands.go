package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/Skotchmaster/storefront/internal/apiclient"
)

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		if len(args) != 2 {
			return errUsage
		}
		route, err := a.session.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "-> %s\n", route)
		return nil
	case "register":
		if len(args) != 3 {
			return errUsage
		}
		_, err := a.session.Register(ctx, apiclient.RegisterRequest{Username: args[0], Email: args[1], Password: args[2]})
		return err
	case "products":
		return a.products(ctx, args)
	}

	// Everything else needs the stored session.
	a.session.Start(ctx)
	select {
	case <-a.session.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	switch cmd {
	case "logout":
		a.session.Logout(ctx)
		return nil
	case "whoami":
		id, ok := a.session.Identity()
		if !ok {
			fmt.Fprintln(a.out, "not logged in")
			return nil
		}
		fmt.Fprintf(a.out, "%s (%s) id=%d role=%s\n", id.Username, id.DisplayName, id.ID, id.Role)
		return nil
	case "cart":
		return a.printCart()
	case "cart-add":
		if len(args) < 1 || len(args) > 2 {
			return errUsage
		}
		pid, err := parseID(args[0])
		if err != nil {
			return err
		}
		qty := 1
		if len(args) == 2 {
			if qty, err = strconv.Atoi(args[1]); err != nil {
				return errUsage
			}
		}
		p, err := a.api.Product(ctx, pid)
		if err != nil {
			return err
		}
		if err := a.cart.Add(ctx, p, qty); err != nil {
			return err
		}
		return a.printCart()
	case "cart-inc", "cart-dec", "cart-rm":
		if len(args) != 1 {
			return errUsage
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		switch cmd {
		case "cart-inc":
			err = a.cart.Increment(ctx, id)
		case "cart-dec":
			err = a.cart.Decrement(ctx, id)
		default:
			err = a.cart.Remove(ctx, id)
		}
		if err != nil {
			return err
		}
		return a.printCart()
	case "wishlist":
		a.printWishlist()
		return nil
	case "wish-toggle":
		if len(args) != 1 {
			return errUsage
		}
		pid, err := parseID(args[0])
		if err != nil {
			return err
		}
		p, err := a.api.Product(ctx, pid)
		if err != nil {
			return err
		}
		if _, err := a.wishlist.Toggle(ctx, p); err != nil {
			return err
		}
		a.printWishlist()
		return nil
	case "orders":
		return a.orders(ctx)
	default:
		return errUsage
	}
}

func (a *app) products(ctx context.Context, args []string) error {
	var (
		products []apiclient.Product
		err      error
	)
	if len(args) > 0 {
		products, err = a.api.FilterProducts(ctx, apiclient.ProductFilter{Query: args[0]})
	} else {
		products, err = a.api.Products(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE")
	for _, p := range products {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, p.Price.StringFixed(2))
	}
	return w.Flush()
}

func (a *app) printCart() error {
	snap := a.cart.Snapshot()
	if len(snap.Lines) == 0 {
		fmt.Fprintln(a.out, "cart is empty")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tPRODUCT\tQTY\tSUBTOTAL")
	for _, l := range snap.Lines {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", l.ID, l.Product.Name, l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(w, "\t%d items\t\t%s\n", snap.Count, snap.Total.StringFixed(2))
	return w.Flush()
}

func (a *app) printWishlist() {
	entries := a.wishlist.Snapshot()
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "wishlist is empty")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%d\t%s\t%s\n", e.Product.ID, e.Product.Name, e.Product.Price.StringFixed(2))
	}
}

func (a *app) orders(ctx context.Context) error {
	orders, err := a.api.Orders(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		fmt.Fprintf(a.out, "#%d %s %s total=%s\n", o.ID, o.CreatedAt.Format("2006-01-02"), o.Status, o.TotalAmount.StringFixed(2))
		for _, it := range o.Items {
			fmt.Fprintf(a.out, "    %dx %s @ %s\n", it.Quantity, it.Product.Name, it.Price.StringFixed(2))
		}
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
