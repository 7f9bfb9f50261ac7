// Command node starts a Meridian chain node.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridianchain/meridian/config"
	"github.com/meridianchain/meridian/consensus"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/crypto/certgen"
	"github.com/meridianchain/meridian/events"
	"github.com/meridianchain/meridian/mempool"
	"github.com/meridianchain/meridian/network"
	"github.com/meridianchain/meridian/node"
	"github.com/meridianchain/meridian/rpc"
	"github.com/meridianchain/meridian/storage"
	"github.com/meridianchain/meridian/wallet"
)

// DefaultMempoolSize bounds pending transactions held in memory at once.
const DefaultMempoolSize = 5000

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	flag.Parse()

	password := os.Getenv("MERIDIAN_PASSWORD")
	if password == "" {
		log.Println("WARNING: MERIDIAN_PASSWORD not set — keystore will use an empty password")
	}

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := wallet.SaveKey(cfg.Validator.PrivateKeyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Validator address: %s\n", w.Address().Hex())
		fmt.Printf("Saved to: %s\n", cfg.Validator.PrivateKeyPath)
		return
	}

	if *genCerts != "" {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfg.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfg.NodeID)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	genesis, err := config.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		log.Fatalf("genesis: %v", err)
	}
	validatorAddrs, err := genesis.ValidatorAddresses()
	if err != nil {
		log.Fatalf("genesis validators: %v", err)
	}

	var validatorKey crypto.PrivateKey
	if cfg.Validator.Enabled {
		validatorKey, err = loadValidatorKey(cfg.Validator.PrivateKeyPath, password)
		if err != nil {
			log.Fatalf("load validator key: %v", err)
		}
	}

	var peerKey crypto.PrivateKey
	if cfg.PeerKeyPath != "" {
		peerKey, err = wallet.LoadRawKey(cfg.PeerKeyPath)
		if err != nil {
			log.Fatalf("load peer key: %v", err)
		}
	}
	if peerKey == nil {
		w, genErr := wallet.Generate()
		if genErr != nil {
			log.Fatalf("generate peer identity: %v", genErr)
		}
		peerKey = w.PrivKey()
		log.Println("no peer identity configured; generated an ephemeral one for this run")
	}
	peerAddr := peerKey.Public().Address()

	if err := os.MkdirAll(cfg.Storage.DBPath, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	store := storage.NewChainStore(db)

	pool := mempool.New(DefaultMempoolSize)
	engine := consensus.New(consensus.NewSchedule(validatorAddrs))
	emitter := events.NewEmitter()

	tlsCfg, err := config.LoadTLSConfig(cfg.Network.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	listenAddr := fmt.Sprintf("%s:%d", cfg.Network.ListenAddr, cfg.Network.ListenPort)
	net := network.NewNode(peerAddr, listenAddr, tlsCfg)
	if err := net.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer net.Stop()
	log.Printf("P2P listening on %s", listenAddr)

	net.AddBootstrapPeers(cfg.Network.BootstrapPeers)

	n, err := node.Bootstrap(node.Deps{
		Config:       cfg,
		Genesis:      genesis,
		Store:        store,
		Mempool:      pool,
		Engine:       engine,
		Net:          net,
		Emitter:      emitter,
		ValidatorKey: validatorKey,
	})
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		handler := rpc.NewHandler(n)
		rpcServer = rpc.NewServer(cfg.RPC.Addr, handler, cfg.RPC.AuthToken)
		if err := rpcServer.Start(); err != nil {
			log.Fatalf("rpc start: %v", err)
		}
		log.Printf("RPC listening on %s", cfg.RPC.Addr)
		if cfg.RPC.AuthToken != "" {
			log.Println("RPC Bearer token authentication enabled")
		}
	}

	go n.Run()
	if validatorKey != nil {
		log.Printf("Consensus running (validator: %s)", validatorKey.Public().Address().Hex())
	} else {
		log.Println("Running as a non-validating (observer) node")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	n.Shutdown()
	if rpcServer != nil {
		rpcServer.Stop()
	}
	log.Println("Shutdown complete.")
}

func loadValidatorKey(path, password string) (crypto.PrivateKey, error) {
	if k, err := wallet.LoadRawKey(path); err == nil {
		return k, nil
	}
	return wallet.LoadKey(path, password)
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
