package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

type confirmOptions interface {
	IsYes() bool
	GetTarget() string
	GetWarning() string
}

type dbResetConfirmOptions struct {
	yes        bool
	target     string
	remoteHost string
}

// IsYes never skips the prompt for a remote host.
func (d dbResetConfirmOptions) IsYes() bool { return d.yes && d.remoteHost == "" }

func (d dbResetConfirmOptions) GetWarning() string {
	warning := "WARNING: this will drop and recreate the public schema for the configured database."
	if d.remoteHost != "" {
		warning += fmt.Sprintf(" Host %q appears to be remote; double-check before proceeding.", d.remoteHost)
	}
	return warning
}

func (d dbResetConfirmOptions) GetTarget() string { return d.target }

type clearSessionConfirmOptions struct {
	opts clearSessionOptions
}

func (c clearSessionConfirmOptions) IsYes() bool { return c.opts.Yes }
func (c clearSessionConfirmOptions) GetWarning() string {
	return "WARNING: the kiosk using this context will be signed out."
}
func (c clearSessionConfirmOptions) GetTarget() string {
	return fmt.Sprintf("context %q", c.opts.ContextID)
}

func confirmAction(opts confirmOptions, actionType string) error {
	return confirmFrom(os.Stdin, os.Stdout, opts, actionType)
}

func confirmFrom(in io.Reader, out io.Writer, opts confirmOptions, actionType string) error {
	if opts.IsYes() {
		return nil
	}
	if err := writeln(out, opts.GetWarning()); err != nil {
		return fmt.Errorf("print confirmation warning: %w", err)
	}
	if err := writef(out, "About to %s for %s.\nContinue? [y/N]: ", actionType, opts.GetTarget()); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}

	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" || h == "localhost" || strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func requireRemoteHostConfirmation(action, host string) error {
	if err := writef(os.Stderr,
		"\nWARNING: database host %q does not look like a local address.\nThis operation will %s.\n"+
			"Type %q to continue or press enter to abort: ",
		host, action, host,
	); err != nil {
		return fmt.Errorf("print remote host warning: %w", err)
	}
	resp, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(resp) != host {
		return errors.New("aborted by user: remote safeguard check failed")
	}
	return nil
}
