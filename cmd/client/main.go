// Package main runs the interactive GraphPaste training shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/atinyakov/GraphPaste/internal/client"
)

var (
	version   string
	buildDate string
)

func main() {
	var (
		baseURL     string
		caFile      string
		sessionPath string
		showVer     bool
	)

	flag.StringVar(&baseURL, "url", "http://127.0.0.1:5013", "server base URL")
	flag.StringVar(&caFile, "ca", "", "path to CA cert for https")
	flag.StringVar(&sessionPath, "session", ".graphpaste-session.json", "file keeping the login session")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("GraphPaste Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	c, err := client.New(baseURL, caFile)
	if err != nil {
		log.Fatal(err)
	}
	sess, err := client.LoadSession(sessionPath)
	if err != nil {
		log.Fatal(err)
	}
	if sess.BaseURL == c.BaseURL {
		c.Token = sess.Token
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sh := &client.Shell{Client: c, In: os.Stdin, Out: os.Stdout, SessionPath: sessionPath}
	sh.Run(ctx)
}
