package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"antalyabus/pkg/metrics"
)

// ConsoleChatID is the chat ID given to every console message.
const ConsoleChatID int64 = 1

// Console is a dry-run transport: it reads queries line by line and prints
// replies instead of talking to Telegram.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Send(ctx context.Context, chatID int64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[chat %d]\n%s\n\n", chatID, text)
	metrics.RecordMessageSent(ctx, err)
}

// Run feeds each line of in to h until in is exhausted or ctx is cancelled.
// Tracking sessions keep running after in is exhausted; the caller decides
// when to stop them.
func (c *Console) Run(ctx context.Context, in io.Reader, h *Handler) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			h.Handle(ctx, Message{ChatID: ConsoleChatID, FirstName: "console", Text: line})
		}
	}
}
