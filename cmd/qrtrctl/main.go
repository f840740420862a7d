// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command qrtrctl inspects the local QRTR bus. It creates a Bus Observer,
// waits for the initial lookup burst to quiesce, and prints every
// discovered node's services. Given -node and -port it also opens a
// Client Channel, sends one payload, and prints reply datagrams for
// -listen before exiting.
//
// This is read-only tooling over qrtr's public surface (the
// original_source libqrtr-glib bindings ship an equivalent lookup CLI
// alongside the library; see SPEC_FULL.md). It introduces no new protocol
// behavior.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/qrtr-go/qrtr"
)

func main() {
	lookupTimeout := flag.Duration("timeout", 2*time.Second, "how long to wait for the bus to quiesce")
	node := flag.Uint("node", 0, "node id to send a payload to (requires -port)")
	port := flag.Uint("port", 0, "port to send a payload to (requires -node)")
	payload := flag.String("payload", "", "raw bytes to send, interpreted as a UTF-8 string")
	listenFor := flag.Duration("listen", 0, "how long to print reply datagrams before exiting")
	flag.Parse()

	if err := run(*lookupTimeout, uint32(*node), uint32(*port), *payload, *listenFor); err != nil {
		log.Fatalf("qrtrctl: %v", err)
	}
}

func run(lookupTimeout time.Duration, node, port uint32, payload string, listenFor time.Duration) error {
	obs, err := qrtr.Create(qrtr.WithLookupTimeout(lookupTimeout))
	if err != nil {
		return fmt.Errorf("create observer: %w", err)
	}
	defer obs.Close()

	printDirectory(obs)

	if port == 0 {
		return nil
	}

	client, err := qrtr.Open(node, port, qrtr.WithMessageHandler(func(b []byte) {
		fmt.Printf("reply from node=%d port=%d: %q\n", node, port, b)
	}))
	if err != nil {
		return fmt.Errorf("open client: %w", err)
	}
	defer client.Close()

	if err := client.Send(context.Background(), []byte(payload)); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if listenFor > 0 {
		time.Sleep(listenFor)
	}

	return nil
}

func printDirectory(obs *qrtr.Observer) {
	for _, n := range obs.Snapshot() {
		for _, svc := range n.Services {
			fmt.Fprintf(os.Stdout, "node=%d service=%d port=%d version=%d instance=%d\n",
				n.ID, svc.ServiceID, svc.Port, svc.Version, svc.Instance)
		}
	}
}
