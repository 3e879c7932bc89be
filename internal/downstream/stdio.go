package downstream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"atrax/internal/transport"
	"atrax/pkg/logging"
)

// ServeStdio speaks newline-delimited JSON-RPC on r/w, dispatching every inbound frame
// through HandleMessage and forwarding list_changed notifications as they arrive on
// listChanged. It blocks until ctx is cancelled or r returns EOF.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	var writeMu sync.Mutex
	writeLine := func(msg *transport.Message) error {
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
		return nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case kind, ok := <-s.router.ListChanged():
				if !ok {
					return
				}
				notif, err := ListChangedNotification(kind)
				if err != nil {
					continue
				}
				if err := writeLine(notif); err != nil {
					logging.Warn("Downstream", "failed to write list_changed notification: %v", err)
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg transport.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			errResp := transport.NewErrorResponse(nil, codeParseError, "parse error: "+err.Error())
			if werr := writeLine(errResp); werr != nil {
				return werr
			}
			continue
		}
		resp := s.HandleMessage(ctx, &msg)
		if resp == nil {
			continue
		}
		if err := writeLine(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
