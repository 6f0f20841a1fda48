// Command mapchaind starts a MAP Chain node.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mapprotocol/mapchain/chain"
	"github.com/mapprotocol/mapchain/chaindb"
	"github.com/mapprotocol/mapchain/config"
	"github.com/mapprotocol/mapchain/consensus"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/crypto/certgen"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/indexer"
	"github.com/mapprotocol/mapchain/kv"
	"github.com/mapprotocol/mapchain/metrics"
	"github.com/mapprotocol/mapchain/network"
	"github.com/mapprotocol/mapchain/rpc"
	"github.com/mapprotocol/mapchain/scheduler"
	"github.com/mapprotocol/mapchain/trie"
	"github.com/mapprotocol/mapchain/txpool"
	"github.com/mapprotocol/mapchain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/mapprotocol/mapchain/vm/modules/balance"
	_ "github.com/mapprotocol/mapchain/vm/modules/staking"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "clean" {
		runClean(os.Args[2:])
		return
	}

	var (
		cfgPath   = flag.String("config", "config.json", "path to config file")
		dataDir   = flag.String("datadir", "", "override data_dir from config")
		logLevel  = flag.String("log", "", "log level (overrides config; MAP_LOG env takes precedence)")
		rpcAddr   = flag.String("rpc-addr", "", "override rpc_addr from config")
		rpcPort   = flag.Int("rpc-port", 0, "override rpc_port from config")
		single    = flag.Bool("single", false, "run standalone without peers")
		keyHex    = flag.String("key", "", "node signing key, hex-encoded ed25519 private key")
		keyPath   = flag.String("keyfile", "", "path to an encrypted keystore file, used when --key is not given")
		genKey    = flag.Bool("genkey", false, "generate a new signing key, save it to --keyfile, and exit")
		genCerts  = flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	)
	flag.Parse()

	password := os.Getenv("MAP_KEYSTORE_PASSWORD")
	if password == "" && (*genKey || *keyPath != "") {
		log.Println("WARNING: MAP_KEYSTORE_PASSWORD not set — keystore will use an empty password")
	}

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		path := *keyPath
		if path == "" {
			path = "validator.key"
		}
		if err := wallet.SaveKey(path, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Address: %s\n", w.Address().Hex())
		fmt.Printf("Saved to: %s\n", path)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if level := *logLevel; level != "" {
		cfg.LogLevel = level
	}
	if env := os.Getenv("MAP_LOG"); env != "" {
		cfg.LogLevel = env
	}
	if *rpcAddr != "" {
		cfg.RPCAddr = *rpcAddr
	}
	if *rpcPort != 0 {
		cfg.RPCPort = *rpcPort
	}
	if *single {
		cfg.Single = true
	}

	if *genCerts != "" {
		if err := certgen.GenerateAll(*genCerts, "mapchain-node", nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s\n", *genCerts)
		return
	}

	privKey, err := loadNodeKey(*keyHex, *keyPath, cfg, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	pubKey := privKey.Public()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}

	if err := run(cfg, privKey, pubKey, *metricsAddr); err != nil {
		log.Fatalf("startup error: %v", err)
	}
}

func run(cfg *config.Config, privKey crypto.PrivateKey, pubKey crypto.PublicKey, metricsAddr string) error {
	db, err := kv.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	cdb := chaindb.New(db)
	backend := trie.NewRefCounted(db)

	spec, err := config.BuildChainSpec(cfg)
	if err != nil {
		return fmt.Errorf("build chain spec: %w", err)
	}

	emitter := events.NewEmitter()
	bc := chain.New(cdb, backend, spec, emitter)
	if err := bc.Load(); err != nil {
		return fmt.Errorf("chain load: %w", err)
	}
	genesisHash, err := bc.GenesisHash()
	if err != nil {
		return fmt.Errorf("genesis hash: %w", err)
	}
	log.Printf("Chain loaded: genesis=%s head_height=%d", genesisHash, bc.Height())

	idx := indexer.New(db, emitter)

	pool := txpool.New(bc)

	poa := consensus.New(spec.GenesisAuthorityPubKey)

	authority := scheduler.StaticAuthority{Validators: validatorPubKeys(spec)}
	sched := scheduler.New(bc, pool, poa, authority, privKey, pubKey, spec.ChainID, emitter)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	var node *network.Node
	if !cfg.Single {
		p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
		node = network.NewNode(pubKey.Hex(), p2pAddr, pool, tlsCfg)
		network.NewSyncer(node, bc)
		if err := node.Start(); err != nil {
			return fmt.Errorf("p2p start: %w", err)
		}
		defer node.Stop()
		log.Printf("P2P listening on %s", p2pAddr)

		for _, sp := range cfg.SeedPeers {
			if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
				log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
				continue
			}
			log.Printf("Connected to seed peer %s (%s)", sp.ID, sp.Addr)
		}
	} else {
		log.Println("Running in --single mode: no peer sync")
	}

	rpcAddr := fmt.Sprintf("%s:%d", cfg.RPCAddr, cfg.RPCPort)
	rpcHandler := rpc.NewHandler(bc, pool, idx, spec.ChainID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, "")
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
		log.Printf("Metrics listening on %s", metricsAddr)
	}

	exit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(exit)
	}()
	log.Printf("Scheduler running (proposer address: %s)", pubKey.Address().Hex())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	close(exit)
	<-done

	log.Println("Shutdown complete.")
	return nil
}

func validatorPubKeys(spec chain.ChainSpec) []crypto.PublicKey {
	if len(spec.GenesisValidators) == 0 {
		return []crypto.PublicKey{spec.GenesisAuthorityPubKey}
	}
	keys := make([]crypto.PublicKey, 0, len(spec.GenesisValidators))
	for _, v := range spec.GenesisValidators {
		keys = append(keys, crypto.PublicKey(v.PubKey))
	}
	return keys
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func loadNodeKey(keyHex, keyPath string, cfg *config.Config, password string) (crypto.PrivateKey, error) {
	if keyHex == "" {
		keyHex = cfg.NodeKey
	}
	if keyHex != "" {
		return crypto.PrivKeyFromHex(keyHex)
	}
	if keyPath != "" {
		return wallet.LoadKey(keyPath, password)
	}
	return nil, fmt.Errorf("no signing key: pass --key HEX, --keyfile PATH, or set node_key in config")
}

// runClean removes the persisted chain data directory for the "clean"
// subcommand, per the CLI surface's housekeeping command.
func runClean(args []string) {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	dataDir := fs.String("datadir", "", "override data_dir from config")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	dir := cfg.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}
	if dir == "" {
		log.Fatal("clean: no data directory configured")
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Fatalf("clean: %v", err)
	}
	fmt.Printf("Removed chain data at %s\n", dir)
}
