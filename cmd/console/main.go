package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-sor-go/config"
	"github.com/defistate/defistate-sor-go/differ"
	"github.com/defistate/defistate-sor-go/graph"
	"github.com/defistate/defistate-sor-go/patcher"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/router"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/defistate/defistate-sor-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	snapshotPollInterval = time.Second

	DefaultClientSnapshotBufferSize = 100
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// loaded is one decoded snapshot with the structures derived from it.
type loaded struct {
	snapshot *snapshot.Snapshot
	universe *snapshot.Universe
	graph    *graph.Graph
	modTime  time.Time
	loadedAt time.Time
	// diff holds the changes from the previously loaded snapshot, if any.
	diff *differ.SnapshotDiff
}

// SafeState is a thread-safe container for the latest snapshot.
type SafeState struct {
	mu    sync.RWMutex
	state *loaded
}

func (s *SafeState) Update(newState *loaded) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *loaded {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

type console struct {
	router *router.Router
	state  *SafeState
	reader *bufio.Reader
}

func main() {
	_ = godotenv.Load()

	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("sor-console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check sor-console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	cfg, err := loadConfig()
	if err != nil {
		slog.New(slog.NewJSONHandler(logFile, nil)).Error("Failed to load configuration", "error", err)
		closeApp()
	}
	level, _ := cfg.Level()
	rootLogger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE ROUTER ---
	routerCfg, err := cfg.Router(prometheus.DefaultRegisterer, rootLogger.With("component", "router"))
	if err != nil {
		rootLogger.Error("Invalid router configuration", "error", err)
		closeApp()
	}
	r, err := router.New(routerCfg)
	if err != nil {
		rootLogger.Error("Failed to initialize router", "error", err)
		closeApp()
	}

	snapshotDiffer, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: prometheus.DefaultRegisterer,
		Logger:   rootLogger.With("component", "differ"),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize differ", "error", err)
		closeApp()
	}

	// --- 4. SNAPSHOT SOURCE ---
	safeState := &SafeState{}
	var (
		pollCh    <-chan time.Time
		streamCh  <-chan *snapshot.Snapshot
		streamErr <-chan error
	)
	if cfg.StreamURL != "" {
		streamClient, err := client.NewClient(ctx, client.Config{
			URL:        cfg.StreamURL,
			Logger:     rootLogger.With("component", "jsonrpc-client"),
			BufferSize: DefaultClientSnapshotBufferSize,
			Patcher:    patcher.Patch,
		})
		if err != nil {
			rootLogger.Error("Failed to initialize Client", "url", cfg.StreamURL, "error", err)
			closeApp()
		}
		streamCh, streamErr = streamClient.Snapshots(), streamClient.Err()
	} else {
		first, err := loadFile(cfg)
		if err != nil {
			rootLogger.Error("Failed to load snapshot", "path", cfg.SnapshotPath, "error", err)
			closeApp()
		}
		safeState.Update(first)
		ticker := time.NewTicker(snapshotPollInterval)
		defer ticker.Stop()
		pollCh = ticker.C
	}

	update := func(next *loaded) {
		if current := safeState.Get(); current != nil {
			diff, err := snapshotDiffer.Diff(current.snapshot, next.snapshot)
			if err != nil {
				rootLogger.Warn("Snapshot diff failed", "error", err)
			}
			next.diff = diff
		}
		safeState.Update(next)
		rootLogger.Info("Snapshot loaded", "block", next.universe.BlockNumber, "pools", len(next.universe.Pools))
	}

	// --- 5. START CONSOLE & STATE LOOP ---
	fmt.Println(Green + "Starting SOR Console..." + Reset)
	fmt.Println("Logs are being written to 'sor-console.log'")
	c := &console{router: r, state: safeState, reader: bufio.NewReader(os.Stdin)}
	go c.run(ctx)

	for {
		select {
		case <-pollCh:
			current := safeState.Get()
			info, err := os.Stat(cfg.SnapshotPath)
			if err != nil || !info.ModTime().After(current.modTime) {
				continue
			}
			next, err := loadFile(cfg)
			if err != nil {
				// keep serving the previous snapshot
				rootLogger.Warn("Snapshot reload failed", "path", cfg.SnapshotPath, "error", err)
				continue
			}
			update(next)

		case s := <-streamCh:
			next, err := build(cfg, s, time.Time{})
			if err != nil {
				rootLogger.Warn("Streamed snapshot rejected", "block", s.BlockNumber, "error", err)
				continue
			}
			update(next)

		case err, ok := <-streamErr:
			if !ok {
				streamErr = nil
				continue
			}
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

func loadFile(cfg *config.Config) (*loaded, error) {
	file, err := os.Open(cfg.SnapshotPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	s, err := snapshot.Decode(file)
	if err != nil {
		return nil, err
	}
	return build(cfg, s, info.ModTime())
}

func build(cfg *config.Config, s *snapshot.Snapshot, modTime time.Time) (*loaded, error) {
	u, err := snapshot.Build(s, snapshot.Options{StableMaxIterations: cfg.StableMaxIterations})
	if err != nil {
		return nil, err
	}
	return &loaded{
		snapshot: s,
		universe: u,
		graph:    graph.New(u, graph.Options{}),
		modTime:  modTime,
		loadedAt: time.Now(),
	}, nil
}

// run handles user input and display.
func (c *console) run(ctx context.Context) {
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := c.reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}

		c.handleCommand(ctx, strings.TrimSpace(input))

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		c.reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "DEFI STATE SOR" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Snapshot Info\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Pool Summary\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Find Pool  %s(by Id)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Find Pools %s(by Token Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Watch      %s(Snapshot Reloads)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Route      %s(Smart Order Router)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(ctx context.Context, input string) {
	state := c.state.Get()

	// Allow help and quit even if no snapshot has arrived
	if state == nil && input != "q" && input != "h" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first snapshot... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printSnapshotInfo(state)
	case "2":
		printPoolSummary(state)
	case "3":
		c.findPool(state)
	case "4":
		c.findPoolsByToken(state)
	case "5":
		c.watch()
	case "6":
		c.findRoute(ctx, state)
	case "h":
		printHelp()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("SMART ORDER ROUTER")
	fmt.Println(Bold + "Concept: Split a swap across the pools of one snapshot" + Reset)
	fmt.Println("")

	fmt.Println(Bold + "1. THE SNAPSHOT" + Reset)
	fmt.Println("   A JSON file with the chain, block, pools and ERC4626 buffers.")
	fmt.Println("   The console reloads it whenever the file changes, or follows a")
	fmt.Println("   websocket stream of full snapshots and diffs when streamUrl is set.")
	fmt.Println("")

	fmt.Println(Bold + "2. THE PIPELINE" + Reset)
	fmt.Printf("   A. %sGraph%s       tokens are nodes, each pool adds an edge per token pair.\n", Cyan, Reset)
	fmt.Printf("   B. %sPath Finder%s enumerates simple paths and ranks them by liquidity.\n", Cyan, Reset)
	fmt.Printf("   C. %sOptimizer%s   splits the amount so marginal prices equalize.\n", Cyan, Reset)
	fmt.Printf("   D. %sResult%s      amounts, paths and price impact.\n", Cyan, Reset)
	fmt.Println("")

	fmt.Println(Bold + "3. STATUSES" + Reset)
	fmt.Printf("   %sOK%s, %sNO_ROUTE%s, %sNO_LIQUIDITY%s, %sSHORTFALL%s, %sTIMEOUT%s\n",
		Green, Reset, Red, Reset, Yellow, Reset, Yellow, Reset, Red, Reset)
	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
}

func printSnapshotInfo(state *loaded) {
	u := state.universe
	fmt.Printf("\n%sSTATUS  ::%s Block %s#%d%s | Chain %s%d%s | Loaded %s%s%s\n",
		Green, Reset,
		Bold, u.BlockNumber, Reset,
		Bold, u.ChainID, Reset,
		Bold, state.loadedAt.Format("15:04:05"), Reset,
	)
	fmt.Printf("%sPools:%s %d routable, %d excluded | %sTokens:%s %d | %sEdges blocked:%s %d\n",
		Bold, Reset, len(u.Pools), len(u.Excluded),
		Bold, Reset, state.graph.NumTokens(),
		Bold, Reset, len(state.graph.Blocked()),
	)
}

func printPoolSummary(state *loaded) {
	header("POOL SUMMARY")

	counts := make(map[protocols.Kind]int)
	for _, p := range state.universe.Pools {
		counts[p.Kind()]++
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "KIND\tPOOLS\t")
	fmt.Fprintln(w, "----\t-----\t")
	for _, k := range []protocols.Kind{protocols.KindWeighted, protocols.KindStable, protocols.KindBuffer, protocols.KindGyro2CLP} {
		fmt.Fprintf(w, "%s\t%d\t\n", k, counts[k])
	}
	w.Flush()

	if len(state.universe.Excluded) == 0 {
		return
	}
	header("EXCLUDED POOLS")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "POOL ID\tREASON\t")
	fmt.Fprintln(w, "-------\t------\t")
	for _, ex := range state.universe.Excluded {
		id := ex.PoolID
		if len(id) > 25 {
			id = id[:22] + "..."
		}
		fmt.Fprintf(w, "%s\t%s%v%s\t\n", id, Red, ex.Err, Reset)
	}
	w.Flush()
}

func (c *console) findPool(state *loaded) {
	fmt.Print("\n" + Bold + "[Find Pool] Enter Pool Id: " + Reset)
	id := c.readLine()
	if id == "" {
		return
	}
	pool, ok := state.universe.Pool(id)
	if !ok {
		fmt.Println(Red + "[NOT FOUND] Pool id not found in snapshot." + Reset)
		return
	}
	printPool(pool)
}

func printPool(pool protocols.Pool) {
	printField := func(key string, value any) {
		fmt.Printf("  %s%-15s%s %v\n", Gray, key+":", Reset, value)
	}

	header("POOL " + strings.ToUpper(pool.ID()))
	printField("Kind", Cyan+pool.Kind().String()+Reset)
	printField("Address", pool.Address().Hex())
	printField("Swap Fee", pool.SwapFee())
	printField("Hook", pool.Hook().Kind)
	printField("Unbalanced", !pool.LiquidityManagement().DisableUnbalancedLiquidity)
	if bpt, ok := pool.BPT(); ok {
		printField("BPT", bpt.Address.Hex())
	}

	balances := pool.InitialBalances()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "\nTOKEN\tADDRESS\tBALANCE\t")
	fmt.Fprintln(w, "-----\t-------\t-------\t")
	for i, t := range pool.Tokens() {
		balance := token.Zero(t)
		if balances != nil && i < len(balances.Amounts) {
			balance.Amount = balances.Amounts[i]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", t, t.Address.Hex(), balance.Human())
	}
	w.Flush()
}

func (c *console) findPoolsByToken(state *loaded) {
	fmt.Print("\n" + Bold + "[Find Pools] Enter Token Address (Hex): " + Reset)
	t, err := c.readToken(state)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}

	header("TOKEN DETAILS")
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Symbol:", Reset, t.Symbol)
	fmt.Printf(" %s%-10s%s %d\n", Gray, "Decimals:", Reset, t.Decimals)
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Address:", Reset, t.Address.Hex())

	ids := state.graph.PoolsForToken(t)
	if len(ids) == 0 {
		fmt.Println(Yellow + "[INFO] Token has no pools in the graph." + Reset)
		return
	}

	header(strings.ToUpper(fmt.Sprintf("POOLS FOR %s", t)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPAIRED TOKENS\tPOOL ADDRESS\t")
	fmt.Fprintln(w, "--\t----\t-------------\t------------\t")
	for _, id := range ids {
		pool, ok := state.universe.Pool(id)
		if !ok {
			fmt.Fprintf(w, "%s\t%s???%s\t???\t<Missing>\t\n", id, Red, Reset)
			continue
		}
		var paired []string
		for _, pt := range pool.Tokens() {
			if !pt.IsUnderlyingEqual(t) {
				paired = append(paired, pt.String())
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", id, pool.Kind(), strings.Join(paired, ","), pool.Address().Hex())
	}
	w.Flush()
}

func (c *console) watch() {
	fmt.Println(Green + "Watching snapshot reloads... (Press 'Enter' to stop)" + Reset)

	stopCh := make(chan struct{})
	go func() {
		c.reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last *loaded
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			state := c.state.Get()
			if state == nil || state == last {
				continue
			}
			last = state

			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (Block: %d) ---\n"+Reset, state.universe.BlockNumber)
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)
			printSnapshotInfo(state)
			printDiff(state.diff)
		}
	}
}

func printDiff(diff *differ.SnapshotDiff) {
	if diff == nil {
		return
	}
	header(fmt.Sprintf("CHANGES #%d -> #%d", diff.FromBlock, diff.ToBlock))
	if diff.IsEmpty() {
		fmt.Println(Gray + "No pool changes." + Reset)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "POOL ID\tCHANGE\t")
	fmt.Fprintln(w, "-------\t------\t")
	for _, p := range diff.Pools {
		fmt.Fprintf(w, "%s\t%sadded/updated%s\t\n", p.ID, Green, Reset)
	}
	for _, id := range diff.RemovedPools {
		fmt.Fprintf(w, "%s\t%sremoved%s\t\n", id, Red, Reset)
	}
	w.Flush()
	if n := len(diff.Buffers) + len(diff.RemovedBuffers); n > 0 {
		fmt.Printf("%sBuffers changed:%s %d\n", Bold, Reset, n)
	}
}

func (c *console) findRoute(ctx context.Context, state *loaded) {
	header("ROUTE FINDER")

	// 1. Input Token
	fmt.Print(Bold + "1. Enter Input Token Address: " + Reset)
	tokenIn, err := c.readToken(state)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	fmt.Printf("%s   Selected Input: %s (%d decimals)%s\n", Green, tokenIn, tokenIn.Decimals, Reset)

	// 2. Output Token
	fmt.Print(Bold + "2. Enter Output Token Address: " + Reset)
	tokenOut, err := c.readToken(state)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	fmt.Printf("%s   Selected Output: %s (%d decimals)%s\n", Green, tokenOut, tokenOut.Decimals, Reset)

	// 3. Kind
	fmt.Print(Bold + "3. Swap Kind [GivenIn/GivenOut] (default GivenIn): " + Reset)
	kind := protocols.GivenIn
	if input := c.readLine(); input != "" {
		if kind, err = protocols.ParseSwapKind(input); err != nil {
			fmt.Println(Red + err.Error() + Reset)
			return
		}
	}

	// 4. Amount
	given := tokenIn
	if kind == protocols.GivenOut {
		given = tokenOut
	}
	fmt.Printf(Bold+"4. Enter %s Amount (e.g. 1.5): "+Reset, given)
	amount, err := token.FromHumanAmount(given, c.readLine())
	if err != nil {
		fmt.Println(Red + "Invalid amount format." + Reset)
		return
	}

	fmt.Printf("\nRouting %s %s (Raw: %s)... calculating best split...\n", kind, amount, amount.Amount)

	res, err := c.router.Quote(ctx, state.snapshot, router.Request{
		TokenIn:    tokenIn.Address,
		TokenOut:   tokenOut.Address,
		SwapKind:   kind,
		SwapAmount: amount.Amount,
	})
	if err != nil {
		fmt.Printf(Red+"[ERROR] Quote failed: %v%s\n", err, Reset)
		return
	}
	printRouteResult(state, res)
}

func printRouteResult(state *loaded, res *router.Result) {
	header("BEST ROUTE FOUND")

	statusColor := Green
	if res.Status != router.StatusOK {
		statusColor = Yellow
	}
	fmt.Printf("%sStatus:%s      %s%s%s\n", Bold, Reset, statusColor, res.Status, Reset)
	if err := res.Err(); err != nil {
		fmt.Printf("%sReason:%s      %v\n", Bold, Reset, err)
	}
	fmt.Printf("%sInput:%s       %s (Raw: %s)\n", Bold, Reset, res.InputAmount, res.InputAmount.Amount)
	fmt.Printf("%sOutput:%s      %s (Raw: %s)\n", Bold, Reset, res.OutputAmount, res.OutputAmount.Amount)
	impact := token.Amount{Token: token.Token{Decimals: 16}, Amount: res.PriceImpact}
	fmt.Printf("%sPrice Impact:%s %s%%\n\n", Bold, Reset, impact.Human())

	for i, p := range res.Paths {
		fmt.Printf(" [ Path %d ] %s -> %s\n", i+1, p.InputAmount, p.OutputAmount)
		for hop, pool := range p.Pools {
			poolDesc := pool.Kind().String()
			if p.IsBuffer[hop] {
				poolDesc = "Buffer"
			}
			fmt.Printf("  %s%-6s%s\n", Cyan, p.Tokens[hop], Reset)
			fmt.Printf("    %s|%s\n", Gray, Reset)
			fmt.Printf("    %s+---[%s%s %s]--->%s  %s%-6s%s\n",
				Gray,
				Reset, poolDesc, pool.ID(),
				Reset,
				Cyan, p.Tokens[hop+1], Reset)
		}
		fmt.Println("")
	}
	if len(res.Paths) == 0 && state.graph.NumPools() == 0 {
		fmt.Println(Yellow + "Snapshot has no routable pools." + Reset)
	}
}

// --- HELPERS ---

func (c *console) readLine() string {
	input, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// readToken resolves an address through the snapshot registry, then through the
// graph for pool share tokens.
func (c *console) readToken(state *loaded) (token.Token, error) {
	input := c.readLine()
	if input == "" {
		return token.Token{}, errors.New("empty input")
	}
	if !common.IsHexAddress(input) {
		return token.Token{}, fmt.Errorf("invalid address: %s", input)
	}
	address := common.HexToAddress(input)
	if t, ok := state.universe.Tokens.GetByAddress(address); ok {
		return t, nil
	}
	if i, ok := state.graph.TokenIndex(token.Token{Address: address}); ok {
		return state.graph.Token(i), nil
	}
	return token.Token{}, errors.New("token address not found in snapshot")
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	snapshotPath := flag.String("snapshot", "", "Path to the pool snapshot JSON. Overrides the config.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)

	cfg, err := config.LoadConfig(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if *snapshotPath != "" {
		cfg.SnapshotPath = *snapshotPath
	}
	if cfg.SnapshotPath == "" && cfg.StreamURL == "" {
		return nil, errors.New("no snapshot path or stream url configured")
	}
	return cfg, nil
}
