package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"ordersync/internal/lifecycle"
	"ordersync/internal/order"
	"ordersync/internal/pager"
	"ordersync/internal/session"
	"ordersync/internal/utils"
)

const usage = `commands:
  tab NEW|CONFIRMED|OUT_FOR_DELIVERY|DELIVERED|CANCELLED
  refresh | more | search TEXT | sort asc|desc
  confirm ID | cancel ID | accept ID | deliver ID | retry ID | read ID
  help | quit`

// readCommands drives the session from line-oriented input until quit, EOF
// or ctx is done.
func readCommands(ctx context.Context, r io.Reader, sess *session.Session, logger *utils.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, sess, line)
			if err != nil {
				logger.Warn("Command failed", map[string]interface{}{
					"command": line,
					"error":   err.Error(),
					"kind":    order.KindOf(err),
				})
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(ctx context.Context, sess *session.Session, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	arg := func() (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("%s takes exactly one argument", name)
		}
		return args[0], nil
	}
	transition := func(fn func(context.Context, string) (*lifecycle.Result, error)) error {
		id, err := arg()
		if err != nil {
			return err
		}
		res, err := fn(ctx, id)
		if err == nil && res != nil && res.Declined {
			return fmt.Errorf("order %s: cash not collected, still out for delivery", id)
		}
		return err
	}

	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Println(usage)
	case "tab":
		value, err := arg()
		if err != nil {
			return false, err
		}
		tab, err := order.ParseTab(strings.ToUpper(value))
		if err != nil {
			return false, err
		}
		return false, sess.SwitchTab(ctx, tab)
	case "refresh":
		return false, sess.Refresh(ctx)
	case "more":
		_, err := sess.LoadMore(ctx)
		return false, err
	case "search":
		sess.Search(strings.Join(args, " "))
	case "sort":
		dir, err := arg()
		if err != nil {
			return false, err
		}
		return false, sess.Sort(ctx, pager.SortDirection(strings.ToLower(dir)))
	case "confirm":
		return false, transition(sess.Confirm)
	case "cancel":
		return false, transition(sess.Cancel)
	case "accept":
		return false, transition(sess.Accept)
	case "deliver":
		return false, transition(sess.Deliver)
	case "retry":
		return false, transition(sess.RetryReconciliation)
	case "read":
		id, err := arg()
		if err != nil {
			return false, err
		}
		return false, sess.MarkRead(ctx, id)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", name)
	}
	return false, nil
}
