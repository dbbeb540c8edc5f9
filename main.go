package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"linkup/api"
	"linkup/chat"
	"linkup/config"
	"linkup/devserver"
	"linkup/events"
	"linkup/feed"
	"linkup/models"
	"linkup/notify"
	"linkup/session"
	"linkup/social"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:    "linkup",
		Usage:   "terminal client for the linkup social network",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(cfg),
			loginCommand(cfg),
			feedCommand(cfg),
			likeCommand(cfg),
			searchCommand(cfg),
			requestsCommand(cfg),
			chatCommand(cfg),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the in-memory development backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: cfg.ListenAddr, Usage: "listen address"},
			&cli.StringFlag{Name: "jwt-secret", Value: "linkup-dev-secret", Usage: "token signing secret"},
		},
		Action: func(c *cli.Context) error {
			srv := devserver.New(c.String("jwt-secret"))
			return srv.Run(c.String("addr"))
		},
	}
}

func loginCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "log in and print the session token",
		ArgsUsage: "<username> <password>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: linkup login <username> <password>", 1)
			}
			client := api.NewClient(cfg)
			resp, err := client.Login(c.Context, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (id %d).\nexport LINKUP_TOKEN=%s\n", resp.User.Username, resp.User.ID, resp.Token)
			return nil
		},
	}
}

func feedCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "show your friends' posts",
		Action: func(c *cli.Context) error {
			client, _, err := requireSession(c.Context, cfg)
			if err != nil {
				return err
			}
			engine := feed.New(client)
			if err := engine.Load(c.Context); err != nil {
				return err
			}
			for _, p := range engine.Posts() {
				heart := " "
				if p.IsLiked {
					heart = "♥"
				}
				fmt.Printf("#%-4d %s @%-15s %3d likes %s\n      %s\n", p.ID, heart, p.Username, p.LikeCount, p.TimeAgo, p.PostText)
			}
			return nil
		},
	}
}

func likeCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:      "like",
		Usage:     "toggle your like on a post",
		ArgsUsage: "<post-id>",
		Action: func(c *cli.Context) error {
			postID, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil {
				return cli.Exit("usage: linkup like <post-id>", 1)
			}
			client, _, err := requireSession(c.Context, cfg)
			if err != nil {
				return err
			}
			res, err := client.ToggleLike(c.Context, postID)
			if err != nil {
				return err
			}
			state := "unliked"
			if res.Liked {
				state = "liked"
			}
			fmt.Printf("Post %d %s (%d likes).\n", postID, state, res.LikeCount)
			return nil
		},
	}
}

func searchCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "search users and send friend requests",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "add", Usage: "send a friend request to this user id"},
		},
		Action: func(c *cli.Context) error {
			client, _, err := requireSession(c.Context, cfg)
			if err != nil {
				return err
			}
			queue := notify.NewQueue()
			queue.Subscribe(func(n notify.Notification) {
				fmt.Printf("[%s] %s\n", n.Kind, n.Message)
			})
			store := social.NewStore(client, queue)

			if id := c.Int64("add"); id != 0 {
				return store.SendRequest(c.Context, id)
			}

			if err := store.Search(c.Context, c.Args().First()); err != nil {
				return err
			}
			for _, u := range store.Users() {
				fmt.Printf("#%-4d @%-15s %-20s [%s]\n", u.ID, u.Username, u.Name, store.Status(u.ID))
			}
			return nil
		},
	}
}

func requestsCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "requests",
		Usage: "list and accept pending friend requests",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "accept", Usage: "accept the request with this id"},
			&cli.Int64Flag{Name: "reject", Usage: "reject the request with this id"},
		},
		Action: func(c *cli.Context) error {
			client, _, err := requireSession(c.Context, cfg)
			if err != nil {
				return err
			}
			queue := notify.NewQueue()
			queue.Subscribe(func(n notify.Notification) {
				fmt.Printf("[%s] %s\n", n.Kind, n.Message)
			})
			store := social.NewStore(client, queue)
			if err := store.LoadRequests(c.Context); err != nil {
				return err
			}

			if id := c.Int64("accept"); id != 0 {
				for _, r := range store.Requests() {
					if r.ID == id {
						return store.AcceptRequest(c.Context, r.ID, r.SenderID)
					}
				}
				return cli.Exit("no such request", 1)
			}
			if id := c.Int64("reject"); id != 0 {
				for _, r := range store.Requests() {
					if r.ID == id {
						return store.RejectRequest(c.Context, r.ID, r.SenderID)
					}
				}
				return cli.Exit("no such request", 1)
			}

			for _, r := range store.Requests() {
				fmt.Printf("#%-4d from @%s (%s)\n", r.ID, r.Username, r.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func chatCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "open a live conversation with a friend",
		ArgsUsage: "<peer-id>",
		Action: func(c *cli.Context) error {
			peerID, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil {
				return cli.Exit("usage: linkup chat <peer-id>", 1)
			}
			return runChat(c.Context, cfg, peerID)
		},
	}
}

func runChat(ctx context.Context, cfg config.Config, peerID int64) error {
	client, user, err := requireSession(ctx, cfg)
	if err != nil {
		return err
	}

	queue := notify.NewQueue()
	queue.Subscribe(func(n notify.Notification) {
		fmt.Printf("[%s] %s\n", n.Kind, n.Message)
	})

	stream := events.NewStream(cfg.WSURL, client.Token())
	if err := stream.Start(ctx); err != nil {
		return fmt.Errorf("connect live stream: %w", err)
	}
	defer stream.Close()

	engine := chat.New(client, queue, user.ID)
	engine.OnScrollToLatest(func() {
		msgs := engine.Messages()
		if len(msgs) == 0 {
			return
		}
		m := msgs[len(msgs)-1]
		who := "them"
		if m.SenderID == user.ID {
			who = "you"
		}
		fmt.Printf("%s  %s: %s\n", m.Timestamp.Local().Format("15:04"), who, m.Content)
	})
	engine.Attach(stream)
	engine.Select(ctx, peerID)

	fmt.Printf("Chatting with user %d. Type a message and press enter; Ctrl-D to quit.\n", peerID)

	return chatLoop(ctx, engine, os.Stdin, os.Stdout)
}

// chatLoop reads lines and sends each as a message. A line that fails to
// send is not lost: pressing enter on an empty line retries it.
func chatLoop(ctx context.Context, engine *chat.Engine, in io.Reader, out io.Writer) error {
	var unsent string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			line = unsent
		}
		if line == "" {
			continue
		}
		if err := engine.Send(ctx, line); err != nil {
			log.Warn().Err(err).Msg("send failed")
			unsent = line
			fmt.Fprintf(out, "Not sent: %q. Press enter to retry.\n", line)
			continue
		}
		unsent = ""
	}
	return scanner.Err()
}

func requireSession(ctx context.Context, cfg config.Config) (*api.Client, *models.User, error) {
	client := api.NewClient(cfg)
	guard := session.NewGuard(client, func() {
		fmt.Fprintln(os.Stderr, "Not logged in. Run `linkup login <username> <password>` and export LINKUP_TOKEN.")
	})
	user, err := guard.Require(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, user, nil
}
