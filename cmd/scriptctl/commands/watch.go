package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kapu/persona-script-go/internal/client"
	"github.com/kapu/persona-script-go/internal/session"
)

var (
	serverURL      string
	watchReconnect int
)

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow a server session's live state",
	Long: `Follow a server session's live state.

Prints one summary line per committed change until the session is deleted,
the server shuts down or Ctrl-C is pressed.

Example:
  scriptctl watch 3f1c... --server http://localhost:8080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := client.NewClient(serverURL, logger)
		if _, err := c.GetSession(ctx, args[0]); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		stream := client.NewEventStream(c.EventsURL(args[0]), watchReconnect, 2*time.Second, logger)
		stream.OnEvent(func(ev session.Event) { printEvent(out, ev) })

		if err := stream.Connect(ctx); err != nil && stream.State() == client.StreamFailed {
			return err
		}
		defer stream.Disconnect()

		select {
		case <-ctx.Done():
		case <-stream.Done():
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "server base URL")
	watchCmd.Flags().IntVar(&watchReconnect, "reconnect", 5, "maximum reconnect attempts")
}

func printEvent(w io.Writer, ev session.Event) {
	st := ev.State
	busy := ""
	if st.Busy() {
		busy = " (busy)"
	}
	fmt.Fprintf(w, "[rev %d] step %d %s | %d personas | %d lines%s\n",
		st.Revision, int(st.Step), st.Step, len(st.Personas), len(st.Script), busy)
	if st.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", st.Error)
	}
	if st.SearchError != "" {
		fmt.Fprintf(w, "  search: %s\n", st.SearchError)
	}
}
