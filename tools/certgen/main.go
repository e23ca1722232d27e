// Package main generates the development TLS material of the server: a CA
// and a server certificate signed by it, written under the "certs"
// directory. Point the server at server.crt/server.key and the client at
// ca.crt.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/atinyakov/GraphPaste/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated server names and addresses")
	flag.Parse()

	if err := run(*dir, splitHosts(*hosts)); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ Certificates generated into ./%s\n", *dir)
}

func run(dir string, hosts []string) error {
	caCert, caKey, err := certgen.GenerateCA("GraphPaste Dev CA")
	if err != nil {
		return err
	}
	caKeyPEM, err := certgen.EncodeKey(caKey)
	if err != nil {
		return err
	}
	serverCert, serverKey, err := certgen.GenerateServerCertificate(hosts, caCert, caKey)
	if err != nil {
		return err
	}
	return certgen.WriteFiles(dir, map[string][]byte{
		"ca.crt":     certgen.EncodeCert(caCert.Raw),
		"ca.key":     caKeyPEM,
		"server.crt": serverCert,
		"server.key": serverKey,
	})
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
