package main

import (
	"bufio"
	"chat-relay/infrastructure/grpc/api"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
	"google.golang.org/grpc"
)

const usage = `usage: chatctl <command> [arguments]

  register <email> <display name>   create an account, the secret is prompted
  login <email>                     print a token to export as CHAT_TOKEN
  logout                            revoke the current token
  me                                show the current account
  accounts                          list the other accounts
  conversations                     list recent chats
  send <account id> <text>          send a message
  history <account id> [cursor]     print a conversation
  watch <account id> [cursor]       follow a conversation
  inbox                             follow recent chats
  search <query>                    search your messages
`

type command struct {
	name string
	args []string
}

var arity = map[string]struct{ min, max int }{
	"register":      {2, -1},
	"login":         {1, 1},
	"logout":        {0, 0},
	"me":            {0, 0},
	"accounts":      {0, 0},
	"conversations": {0, 0},
	"send":          {2, -1},
	"history":       {1, 2},
	"watch":         {1, 2},
	"inbox":         {0, 0},
	"search":        {1, -1},
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, stderrors.New("missing command")
	}
	name, rest := args[0], args[1:]
	bounds, ok := arity[name]
	if !ok {
		return command{}, fmt.Errorf("unknown command %q", name)
	}
	if len(rest) < bounds.min || (bounds.max >= 0 && len(rest) > bounds.max) {
		return command{}, fmt.Errorf("wrong number of arguments for %s", name)
	}
	return command{name: name, args: rest}, nil
}

type authClient interface {
	Register(ctx context.Context, in *api.RegisterRequest, opts ...grpc.CallOption) (*api.RegisterResponse, error)
	Authenticate(ctx context.Context, in *api.AuthenticateRequest, opts ...grpc.CallOption) (*api.Session, error)
	Logout(ctx context.Context, opts ...grpc.CallOption) error
}

type accountClient interface {
	GetMe(ctx context.Context, opts ...grpc.CallOption) (*api.Account, error)
	ListOtherAccounts(ctx context.Context, opts ...grpc.CallOption) (*api.ListAccountsResponse, error)
}

type chatClient interface {
	SendMessage(ctx context.Context, in *api.SendMessageRequest, opts ...grpc.CallOption) (*api.Message, error)
	ListMessages(ctx context.Context, in *api.ListMessagesRequest, opts ...grpc.CallOption) (*api.ListMessagesResponse, error)
	ListConversations(ctx context.Context, opts ...grpc.CallOption) (*api.ListConversationsResponse, error)
	SearchMessages(ctx context.Context, in *api.SearchRequest, opts ...grpc.CallOption) (*api.ListMessagesResponse, error)
	SubscribeMessages(ctx context.Context, in *api.SubscribeMessagesRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.MessageEvent], error)
	SubscribeConversationSummaries(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.SummaryEvent], error)
}

type secretPrompt interface {
	Secret(label string) (string, error)
}

// terminalPrompt reads the secret without echo on a terminal, and as a
// plain line when stdin is piped.
type terminalPrompt struct {
	in  *os.File
	out io.Writer
}

func (p terminalPrompt) Secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if term.IsTerminal(int(p.in.Fd())) {
		secret, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		return string(secret), err
	}
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !(stderrors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type cli struct {
	out      io.Writer
	prompt   secretPrompt
	auth     authClient
	accounts accountClient
	chat     chatClient
}

func (c *cli) execute(ctx context.Context, cmd command) error {
	switch cmd.name {
	case "register":
		secret, err := c.prompt.Secret("Secret")
		if err != nil {
			return err
		}
		res, err := c.auth.Register(ctx, &api.RegisterRequest{
			Email:       cmd.args[0],
			Secret:      secret,
			DisplayName: strings.Join(cmd.args[1:], " "),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Registered %s (%s)\nexport CHAT_TOKEN=%s\n", res.Account.DisplayName, res.Account.ID, res.Session.Token)
	case "login":
		secret, err := c.prompt.Secret("Secret")
		if err != nil {
			return err
		}
		session, err := c.auth.Authenticate(ctx, &api.AuthenticateRequest{Email: cmd.args[0], Secret: secret})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "export CHAT_TOKEN=%s\n", session.Token)
	case "logout":
		return c.auth.Logout(ctx)
	case "me":
		me, err := c.accounts.GetMe(ctx)
		if err != nil {
			return err
		}
		c.printAccounts([]api.Account{*me})
	case "accounts":
		res, err := c.accounts.ListOtherAccounts(ctx)
		if err != nil {
			return err
		}
		c.printAccounts(res.Accounts)
	case "conversations":
		res, err := c.chat.ListConversations(ctx)
		if err != nil {
			return err
		}
		c.printSummaries(res.Summaries)
	case "send":
		m, err := c.chat.SendMessage(ctx, &api.SendMessageRequest{
			CounterpartID: cmd.args[0],
			Text:          strings.Join(cmd.args[1:], " "),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "sent #%d cursor=%s\n", m.Seq, m.Cursor)
	case "history":
		res, err := c.chat.ListMessages(ctx, &api.ListMessagesRequest{
			ConversationRef: api.ConversationRef{CounterpartID: cmd.args[0]},
			Since:           optional(cmd.args, 1),
		})
		if err != nil {
			return err
		}
		for _, m := range res.Messages {
			c.printMessage(m)
		}
	case "watch":
		stream, err := c.chat.SubscribeMessages(ctx, &api.SubscribeMessagesRequest{
			ConversationRef: api.ConversationRef{CounterpartID: cmd.args[0]},
			Since:           optional(cmd.args, 1),
		})
		if err != nil {
			return err
		}
		return follow(stream, func(evt *api.MessageEvent) { c.printMessage(evt.Message) })
	case "inbox":
		stream, err := c.chat.SubscribeConversationSummaries(ctx)
		if err != nil {
			return err
		}
		return follow(stream, func(evt *api.SummaryEvent) { c.printSummaryLine(evt.Summary) })
	case "search":
		res, err := c.chat.SearchMessages(ctx, &api.SearchRequest{Query: strings.Join(cmd.args, " ")})
		if err != nil {
			return err
		}
		for _, m := range res.Messages {
			c.printMessage(m)
		}
	}
	return nil
}

// follow prints every event until the server closes the stream.
func follow[T any](stream grpc.ServerStreamingClient[T], show func(*T)) error {
	for {
		evt, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		show(evt)
	}
}

func optional(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func (c *cli) printMessage(m api.Message) {
	fmt.Fprintf(c.out, "[%s] #%d %s: %s\n",
		m.CreatedAt.Local().Format(time.TimeOnly), m.Seq, color.Cyan.Sprint(m.SenderID), m.Text)
}

func (c *cli) printSummaryLine(s api.Summary) {
	fmt.Fprintf(c.out, "[%s] %s #%d %s\n",
		s.LastMessageAt.Local().Format(time.TimeOnly), color.Yellow.Sprint(s.Counterpart), s.LastSeq, s.LastMessageText)
}

func (c *cli) printAccounts(accounts []api.Account) {
	table := newTable(c.out, "ID", "Name", "Initials", "Color", "Email")
	for _, a := range accounts {
		table.Append([]string{a.ID, a.DisplayName, a.Initials, a.ColorTag, a.Email})
	}
	table.Render()
}

func (c *cli) printSummaries(summaries []api.Summary) {
	table := newTable(c.out, "With", "Last", "Seq", "At")
	for _, s := range summaries {
		table.Append([]string{s.Counterpart, s.LastMessageText, fmt.Sprint(s.LastSeq), s.LastMessageAt.Local().Format(time.DateTime)})
	}
	table.Render()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	return table
}
