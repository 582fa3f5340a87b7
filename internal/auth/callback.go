package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
)

const callbackResponse = "HTTP/1.1 200 OK\r\n\r\n<script>window.close();</script>"

// requestCode sends the user to the authorize URL and waits for the redirect carrying the code.
// The redirect is captured on the loopback listener; if the port cannot be bound the user
// pastes the redirected URL on standard input instead.
func (f *Flow) requestCode(ctx context.Context, authURL, state string) (string, error) {
	ln, listenErr := f.listen("tcp", f.addr)
	if listenErr == nil {
		defer ln.Close()
	}

	if err := f.openBrowser(authURL); err != nil {
		fmt.Fprintf(f.stderr, "Unable to open the URL in your browser. Please navigate here manually: %s\n", authURL)
	} else {
		f.logger.Info("please proceed to log in in your browser")
	}

	if listenErr != nil {
		f.logger.Info("callback port unavailable, falling back to manual paste",
			zap.String("addr", f.addr), zap.Error(listenErr))
		return f.pastedCode(state)
	}

	target, err := acceptCallback(ctx, ln)
	if err != nil {
		return "", err
	}
	return ParseCode(redirectBase+target, state)
}

// acceptCallback accepts one connection, reads the request line and answers with a page that
// closes the browser tab. It returns the request-target of the request line.
func acceptCallback(ctx context.Context, ln net.Listener) (string, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- result{conn, err}
	}()

	var conn net.Conn
	select {
	case <-ctx.Done():
		ln.Close()
		return "", ctx.Err()
	case r := <-accepted:
		if r.err != nil {
			return "", fmt.Errorf("accept callback: %w", r.err)
		}
		conn = r.conn
	}
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read callback request: %w", err)
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", fmt.Errorf("malformed callback request line %q", strings.TrimSpace(line))
	}

	if _, err := io.WriteString(conn, callbackResponse); err != nil {
		return "", fmt.Errorf("write callback response: %w", err)
	}
	return fields[1], nil
}

// pastedCode reads the redirected URL from standard input.
func (f *Flow) pastedCode(state string) (string, error) {
	if file, ok := f.stdin.(*os.File); ok && !term.IsTerminal(int(file.Fd())) {
		f.logger.Warn("standard input is not a terminal; the redirect URL must be piped in")
	}

	fmt.Fprintln(f.stderr, "Please enter the URL you were redirected to: ")
	line, err := bufio.NewReader(f.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read redirect URL: %w", err)
	}
	return ParseCode(line, state)
}

// ParseCode extracts the authorization code from a redirect URL.
// A state parameter, when present, must match the one sent with the authorize request.
func ParseCode(rawURL, state string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("unable to parse the response code: %w", err)
	}

	q := u.Query()
	if reason := q.Get("error"); reason != "" {
		return "", fmt.Errorf("%w: %s", ErrAuthDenied, reason)
	}
	if got := q.Get("state"); got != "" && got != state {
		return "", ErrStateMismatch
	}

	code := q.Get("code")
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}
