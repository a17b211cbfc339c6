// Command dhtnode runs a Mainline DHT node. It binds a UDP socket,
// bootstraps off known seeds, and either serves the passive dispatcher
// loop or performs a one-shot peer lookup for a torrent's infohash.
//
// Configuration comes from flags, with defaults overridable through a
// .env file (DHT_LISTEN_ADDR, DHT_SEEDS).
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/amit19singh/Kademlia-DHT/dht"
	"github.com/amit19singh/Kademlia-DHT/metainfo"
)

func main() {
	godotenv.Load()

	listenAddr := flag.String("listen", envOr("DHT_LISTEN_ADDR", ":6881"), "UDP listen address")
	seedList := flag.String("seeds", envOr("DHT_SEEDS", "router.bittorrent.com:6881"), "comma-separated seed ip:port list")
	torrentPath := flag.String("torrent", "", "torrent file to read the infohash from")
	infohashHex := flag.String("infohash", "", "40-char hex infohash to look up")
	lookupOnly := flag.Bool("lookup", false, "perform one peer lookup and exit instead of serving")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	target, haveTarget, err := resolveTarget(*torrentPath, *infohashHex)
	if err != nil {
		logrus.WithError(err).Fatal("Could not determine lookup target")
	}

	options := dht.DefaultOptions()
	options.ListenAddr = *listenAddr

	node, err := dht.New(options)
	if err != nil {
		logrus.WithError(err).Fatal("Could not start DHT node")
	}
	defer node.Close()
	fmt.Printf("node ID: %s\n", node.SelfID())

	if err := addSeeds(node, *seedList); err != nil {
		logrus.WithError(err).Fatal("Could not register seeds")
	}

	ctx := context.Background()
	if err := node.Bootstrap(ctx); err != nil {
		logrus.WithError(err).Warn("Bootstrap did not complete")
	}

	if *lookupOnly {
		if !haveTarget {
			logrus.Fatal("lookup mode needs -torrent or -infohash")
		}
		for _, contact := range node.FindPeers(ctx, target) {
			fmt.Printf("%s %s:%d\n", contact.ID, contact.IP, contact.Port)
		}
		return
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		node.Close()
	}()
	node.Run()
}

// resolveTarget derives the lookup target from a torrent file or a hex
// infohash, the torrent taking precedence. File reading stays here; the
// decoder itself only sees bytes.
func resolveTarget(torrentPath, infohashHex string) (dht.NodeID, bool, error) {
	if torrentPath != "" {
		data, err := os.ReadFile(torrentPath)
		if err != nil {
			return dht.NodeID{}, false, fmt.Errorf("read torrent: %w", err)
		}
		meta, err := metainfo.Parse(data)
		if err != nil {
			return dht.NodeID{}, false, fmt.Errorf("parse torrent: %w", err)
		}
		printMetainfo(meta)
		return dht.NodeID(meta.InfoHash), true, nil
	}

	if infohashHex != "" {
		raw, err := hex.DecodeString(infohashHex)
		if err != nil {
			return dht.NodeID{}, false, fmt.Errorf("decode infohash: %w", err)
		}
		id, err := dht.NodeIDFromBytes(raw)
		if err != nil {
			return dht.NodeID{}, false, err
		}
		return id, true, nil
	}

	return dht.NodeID{}, false, nil
}

func printMetainfo(meta *metainfo.Metainfo) {
	fmt.Printf("name:         %s\n", meta.Name)
	if meta.Announce != "" {
		fmt.Printf("announce:     %s\n", meta.Announce)
	}
	fmt.Printf("total size:   %d bytes\n", meta.TotalSize)
	fmt.Printf("piece length: %d\n", meta.PieceLength)
	fmt.Printf("pieces:       %d\n", meta.NumPieces)
	fmt.Printf("infohash:     %s\n", hex.EncodeToString(meta.InfoHash[:]))
	for _, file := range meta.Files {
		fmt.Printf("  %12d  %s\n", file.Length, file.Path)
	}
}

func addSeeds(node *dht.DHT, seedList string) error {
	for _, entry := range strings.Split(seedList, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(entry)
		if err != nil {
			return fmt.Errorf("seed %q: %w", entry, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return fmt.Errorf("seed %q: %w", entry, err)
		}

		ips, err := net.LookupIP(host)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"seed":  entry,
				"error": err.Error(),
			}).Warn("Could not resolve seed, skipping")
			continue
		}
		for _, ip := range ips {
			if ip4 := ip.To4(); ip4 != nil {
				if err := node.AddSeed(ip4, uint16(port)); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
