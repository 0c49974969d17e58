package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"example.com/tinysns/internal/models"
	"github.com/gorilla/websocket"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:     "tinysns",
		Usage:    "interactive TinySNS client",
		Action:   run,
		HideHelp: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"h"},
				EnvVars: []string{"TINYSNS_HOST"},
				Value:   "localhost",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				EnvVars: []string{"TINYSNS_USER"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				EnvVars: []string{"TINYSNS_PORT"},
				Value:   "3010",
			},
		},
		ErrWriter: os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type client struct {
	host     string
	port     string
	username string
	token    string
	http     *http.Client
}

var run = func(cmd *cli.Context) error {
	c := &client{
		host:     cmd.String("host"),
		port:     cmd.String("port"),
		username: cmd.String("user"),
		http:     &http.Client{Timeout: 10 * time.Second},
	}

	if err := c.login(); err != nil {
		fmt.Println("could not establish a connection to host")
		return err
	}

	// Command mode: FOLLOW/UNFOLLOW/LIST are request-response; TIMELINE is
	// one-way, there is no path back to command mode.
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Cmd> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(input, "FOLLOW "):
			c.printStatus(c.graphOp("/follow", strings.TrimSpace(input[7:])))
		case strings.HasPrefix(input, "UNFOLLOW "):
			c.printStatus(c.graphOp("/unfollow", strings.TrimSpace(input[9:])))
		case input == "LIST":
			c.list()
		case input == "TIMELINE":
			return c.timeline(scanner)
		default:
			fmt.Println("commands: FOLLOW <user> | UNFOLLOW <user> | LIST | TIMELINE")
		}
	}
}

func (c *client) baseURL() string {
	return "http://" + c.host + ":" + c.port
}

// login registers the username if absent. An ALREADY_EXISTS reply means an
// existing user logged in; both replies carry the session token.
func (c *client) login() error {
	body, _ := json.Marshal(models.User{Username: c.username})
	resp, err := c.http.Post(c.baseURL()+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reply struct {
		Status models.Status `json:"status"`
		Token  string        `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return err
	}

	switch reply.Status {
	case models.StatusSuccess:
		fmt.Println("new user created")
	case models.StatusAlreadyExists:
		fmt.Println(c.username + ": successfully logged in")
	default:
		return fmt.Errorf("login rejected: %s", reply.Status)
	}
	c.token = reply.Token
	return nil
}

func (c *client) graphOp(path, followee string) models.Status {
	body, _ := json.Marshal(map[string]string{"followee": followee})
	req, _ := http.NewRequest(http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return models.StatusUnknown
	}
	defer resp.Body.Close()

	var reply struct {
		Status models.Status `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return models.StatusUnknown
	}
	return reply.Status
}

func (c *client) printStatus(st models.Status) {
	if st == models.StatusSuccess {
		fmt.Println("OK")
	} else {
		fmt.Println(st)
	}
}

func (c *client) list() {
	req, _ := http.NewRequest(http.MethodGet, c.baseURL()+"/list", nil)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Println(models.StatusUnknown)
		return
	}
	defer resp.Body.Close()

	var reply struct {
		Status             models.Status `json:"status"`
		AllUsernames       []string      `json:"all_usernames"`
		FollowingUsernames []string      `json:"following_usernames"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil || reply.Status != models.StatusSuccess {
		fmt.Println(models.StatusUnknown)
		return
	}
	fmt.Println("All users:", strings.Join(reply.AllUsernames, ", "))
	fmt.Println("Following:", strings.Join(reply.FollowingUsernames, ", "))
}

// timeline enters streaming mode over the duplex websocket. Incoming posts
// print as they arrive; each typed line is submitted as a new post. Exit
// with ctrl-C or EOF.
func (c *client) timeline(scanner *bufio.Scanner) error {
	u := url.URL{
		Scheme:   "ws",
		Host:     c.host + ":" + c.port,
		Path:     "/timeline",
		RawQuery: "token=" + url.QueryEscape(c.token),
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial timeline: %w", err)
	}
	defer conn.Close()

	fmt.Println("Now you are in the timeline")

	go func() {
		for {
			var f models.TimelineFrame
			if err := conn.ReadJSON(&f); err != nil {
				fmt.Println("timeline stream ended")
				os.Exit(0)
			}
			switch f.Type {
			case models.FramePost:
				if f.Post != nil {
					fmt.Printf("%s (%d) >> %s\n", f.Post.Author, f.Post.Timestamp, f.Post.Text)
				}
			case models.FrameAck:
				if f.Status != models.StatusSuccess {
					fmt.Println("post rejected:", f.Status)
				}
			}
		}
	}()

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := conn.WriteJSON(models.TimelineFrame{Type: models.FramePost, Text: text}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
