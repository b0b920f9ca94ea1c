package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zbo14/floaty/internal/domain"
	"github.com/zbo14/floaty/internal/infra/journal"
	"github.com/zbo14/floaty/internal/statusapi"
	"github.com/zbo14/floaty/internal/swim"
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("config", "", "Path to a TOML config file")
	runCmd.Flags().Int("id", 0, "This node's numeric peer id")
	runCmd.Flags().String("host", "", "Address to bind the SWIM UDP socket to")
	runCmd.Flags().Int("port", 0, "Port to bind the SWIM UDP socket to")
	runCmd.Flags().StringSlice("peer", nil, "Seed peer as id@host:port (repeatable)")
	runCmd.Flags().String("status-addr", "", "Address to serve the status HTTP API on; overrides the config file when set")
	runCmd.Flags().String("journal", "", "Path to the SQLite diagnostic journal, or :memory:")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the cluster and run the SWIM protocol loop until interrupted",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetInt("id"); v != 0 {
		cfg.ID = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetString("status-addr"); v != "" {
		cfg.StatusAddr = v
	}
	if v, _ := cmd.Flags().GetString("journal"); v != "" {
		cfg.JournalPath = v
	}
	if peers, _ := cmd.Flags().GetStringSlice("peer"); len(peers) > 0 {
		seeds, err := parsePeerSeeds(peers)
		if err != nil {
			return err
		}
		cfg.Peers = seeds
	}

	swimCfg, err := cfg.toSWIMConfig()
	if err != nil {
		return err
	}

	e := swim.NewEngine(cfg.ID, cfg.Host, cfg.Port, swimCfg)
	e.OnError(func(err error) {
		log.Printf("[floaty] error: %v", err)
	})
	e.OnPeerStatusChange(func(id int, old, new domain.PeerStatus) {
		log.Printf("[floaty] peer %d: %s -> %s", id, old, new)
	})

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()
	e.SetJournal(j)

	var peerInfos []swim.PeerInfo
	for _, p := range cfg.Peers {
		peerInfos = append(peerInfos, swim.PeerInfo{ID: p.ID, Host: p.Host, Port: p.Port})
	}
	if err := e.Init(peerInfos); err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer e.Teardown()

	if cfg.StatusAddr != "" {
		srv := statusapi.NewServer(e, j)
		httpSrv := &http.Server{Addr: cfg.StatusAddr, Handler: srv.Handler()}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[floaty] status api: %v", err)
			}
		}()
		defer httpSrv.Close()
		log.Printf("[floaty] status api listening on %s", cfg.StatusAddr)
	}

	if err := e.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	log.Printf("[floaty] node %d running on %s:%d", cfg.ID, cfg.Host, cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[floaty] shutting down")
	return e.Stop()
}

// parsePeerSeeds parses "id@host:port" strings into PeerSeed values.
func parsePeerSeeds(raw []string) ([]PeerSeed, error) {
	seeds := make([]PeerSeed, 0, len(raw))
	for _, s := range raw {
		idPart, addrPart, ok := strings.Cut(s, "@")
		if !ok {
			return nil, fmt.Errorf("invalid --peer %q, want id@host:port", s)
		}
		id, err := strconv.Atoi(idPart)
		if err != nil {
			return nil, fmt.Errorf("invalid --peer %q: bad id: %w", s, err)
		}
		host, portStr, ok := strings.Cut(addrPart, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --peer %q, want id@host:port", s)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --peer %q: bad port: %w", s, err)
		}
		seeds = append(seeds, PeerSeed{ID: id, Host: host, Port: port})
	}
	return seeds, nil
}
