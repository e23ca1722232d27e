package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/atinyakov/GraphPaste/internal/gql"
)

const helpText = `Available commands:
  login <username> <password>   start a session (lockout protected)
  logout                        revoke the session
  me                            show the current account
  users                         list accounts
  pastes [limit]                list pastes, newest first
  paste <id>                    show one paste with its versions
  create <title> <content...>   create a public paste
  delete <id>                   delete a paste
  audits [limit]                show the audit log
  mode [easy|hard]              show or change the difficulty
  query <document>              send a raw GraphQL document
  watch                         stream newly created pastes
  unwatch                       stop streaming
  exit`

// Shell is the interactive REPL. Output goes to Out; commands are read
// from In.
type Shell struct {
	Client      *Client
	In          io.Reader
	Out         io.Writer
	SessionPath string

	outMu   sync.Mutex
	watchMu sync.Mutex
	unwatch context.CancelFunc
	watchWG sync.WaitGroup
}

// Run reads commands until exit or end of input.
func (s *Shell) Run(ctx context.Context) {
	defer s.stopWatch()

	scanner := bufio.NewScanner(s.In)
	for {
		s.printf("graphpaste> ")
		if !scanner.Scan() {
			return
		}
		args := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			s.printf("Bye\n")
			return
		}
		if err := s.exec(ctx, args); err != nil {
			s.printf("error: %v\n", err)
		}
	}
}

func (s *Shell) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "help":
		s.printf("%s\n", helpText)
	case "login":
		if len(args) != 3 {
			s.printf("Usage: login <username> <password>\n")
			return nil
		}
		if err := s.Client.Authenticate(ctx, args[1], args[2]); err != nil {
			return err
		}
		s.saveSession(args[1])
		s.printf("Logged in as %s\n", args[1])
	case "logout":
		if err := s.query(ctx, `mutation { logout }`, nil); err != nil {
			return err
		}
		s.Client.Token = ""
		s.saveSession("")
	case "me":
		return s.query(ctx, `{ me { id username email isAdmin lastLogin failedLoginAttempts lockedUntil requestCount } }`, nil)
	case "users":
		return s.query(ctx, `{ users { id username email isAdmin failedLoginAttempts lockedUntil } }`, nil)
	case "pastes":
		vars := map[string]interface{}{}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			vars["limit"] = n
		}
		return s.query(ctx, `query($limit: Int) { pastes(limit: $limit) { id title public burn size version createdAt } }`, vars)
	case "paste":
		if len(args) != 2 {
			s.printf("Usage: paste <id>\n")
			return nil
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid id %q", args[1])
		}
		return s.query(ctx, `query($id: Int) { paste(id: $id) { id title content public burn size version ipAddr userAgent owner { username } versions { version content createdAt } } }`,
			map[string]interface{}{"id": id})
	case "create":
		if len(args) < 3 {
			s.printf("Usage: create <title> <content...>\n")
			return nil
		}
		return s.query(ctx, `mutation($t: String!, $c: String!) { createPaste(title: $t, content: $c, public: true) { paste { id title size version } } }`,
			map[string]interface{}{"t": args[1], "c": strings.Join(args[2:], " ")})
	case "delete":
		if len(args) != 2 {
			s.printf("Usage: delete <id>\n")
			return nil
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid id %q", args[1])
		}
		return s.query(ctx, `mutation($id: Int!) { deletePaste(id: $id) { result } }`, map[string]interface{}{"id": id})
	case "audits":
		vars := map[string]interface{}{}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			vars["limit"] = n
		}
		return s.query(ctx, `query($limit: Int) { audits(limit: $limit) { id action pasteId userId timestamp ipAddress graphqlOperation operationType securityLevel } }`, vars)
	case "mode":
		if len(args) == 1 {
			return s.query(ctx, `{ serverMode { mode rateLimit updatedAt } }`, nil)
		}
		return s.query(ctx, `mutation($m: String!) { setDifficulty(mode: $m) { mode rateLimit updatedAt } }`,
			map[string]interface{}{"m": args[1]})
	case "query":
		if len(args) < 2 {
			s.printf("Usage: query <document>\n")
			return nil
		}
		return s.query(ctx, strings.Join(args[1:], " "), nil)
	case "watch":
		s.startWatch(ctx)
	case "unwatch":
		s.stopWatch()
	default:
		s.printf("Unknown command. Type 'help' for a list of commands.\n")
	}
	return nil
}

func (s *Shell) query(ctx context.Context, document string, vars map[string]interface{}) error {
	resp, err := s.Client.Do(ctx, gql.Request{Query: document, Variables: vars})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	s.printJSON(resp.Data)
	return nil
}

func (s *Shell) startWatch(ctx context.Context) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.unwatch != nil {
		s.printf("Already watching\n")
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	s.unwatch = cancel
	s.watchWG.Add(1)
	go func() {
		defer s.watchWG.Done()
		err := s.Client.Subscribe(wctx, gql.Request{
			Query: `subscription { pasteCreated { id title content public size createdAt } }`,
		}, func(res Response) {
			if err := res.Err(); err != nil {
				s.printf("event error: %v\n", err)
				return
			}
			s.printJSON(res.Data)
		})
		if wctx.Err() != nil {
			return
		}
		if err != nil {
			s.printf("watch stopped: %v\n", err)
		}
		s.watchMu.Lock()
		s.unwatch = nil
		s.watchMu.Unlock()
		cancel()
	}()
	s.printf("Watching new pastes\n")
}

func (s *Shell) stopWatch() {
	s.watchMu.Lock()
	cancel := s.unwatch
	s.unwatch = nil
	s.watchMu.Unlock()
	if cancel != nil {
		cancel()
		s.watchWG.Wait()
	}
}

func (s *Shell) saveSession(username string) {
	if s.SessionPath == "" {
		return
	}
	sess := &Session{BaseURL: s.Client.BaseURL, Username: username, Token: s.Client.Token}
	if err := sess.Save(s.SessionPath); err != nil {
		s.printf("failed to save session: %v\n", err)
	}
}

func (s *Shell) printJSON(data json.RawMessage) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		b = data
	}
	s.printf("%s\n", b)
}

func (s *Shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.Out, format, args...)
}
