// Command mmdbtree-build drives internal/radixtree end to end: it reads
// a JSON input file of prefix/value pairs, builds the in-memory trie,
// finalizes and writes a complete MaxMind-DB-compatible .mmdb file
// (search tree + data section + metadata), and reports a telemetry event
// for the run. It is the surrounding CLI spec.md §1 explicitly keeps out
// of the CORE's scope, generalized from the teacher's middleware.go
// request-handling shape (config struct, panic recovery, debug timing
// breakdown) to a one-shot batch driver.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ELLIO-Technology/mmdbtree/internal/license"
	"github.com/ELLIO-Technology/mmdbtree/internal/mmdbdata"
	"github.com/ELLIO-Technology/mmdbtree/internal/radixtree"
	"github.com/ELLIO-Technology/mmdbtree/internal/telemetry"
	"github.com/ELLIO-Technology/mmdbtree/pkg/logger"
	"github.com/ELLIO-Technology/mmdbtree/pkg/utils"
)

func main() {
	config := DefaultBuildConfig()

	configPath := flag.String("config", "", "path to a JSON BuildConfig file")
	input := flag.String("input", "", "path to the JSON input file (overrides config)")
	output := flag.String("output", "", "path to write the .mmdb file (overrides config)")
	ipVersion := flag.Int("ip-version", 0, "4 or 6 (overrides config)")
	recordSize := flag.Int("record-size", 0, "24, 28 or 32 (overrides config)")
	logLevel := flag.String("log-level", "", "trace|debug|info|warn|error (overrides config)")
	flag.Parse()

	if *configPath != "" {
		if err := loadConfigFile(*configPath, config); err != nil {
			fmt.Fprintf(os.Stderr, "mmdbtree-build: %v\n", err)
			os.Exit(1)
		}
	}
	if *input != "" {
		config.InputPath = *input
	}
	if *output != "" {
		config.OutputPath = *output
	}
	if *ipVersion != 0 {
		config.IPVersion = *ipVersion
	}
	if *recordSize != 0 {
		config.RecordSize = *recordSize
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}

	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		logger.Warnf("invalid log level %q, defaulting to info: %v", config.LogLevel, err)
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	if config.MachineID == "" {
		config.MachineID = utils.GenerateMachineID()
	}

	if err := run(config); err != nil {
		logger.Errorf("build failed: %v", err)
		os.Exit(1)
	}
}

func loadConfigFile(path string, into *BuildConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config %q: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(into); err != nil {
		return fmt.Errorf("parsing config %q: %w", path, err)
	}
	return nil
}

// run executes one build, recovering from panics exactly as the
// teacher's ServeHTTP does for its request path, logging and returning
// an error instead of a 500.
func run(config *BuildConfig) (buildErr error) {
	buildID := utils.GenerateUUID()
	start := time.Now()
	var stats radixtree.TreeStats

	var shipper *telemetry.Shipper
	if config.TelemetryEndpoint != "" {
		shipper = telemetry.NewShipper(telemetry.Config{
			Endpoint: config.TelemetryEndpoint,
			Token:    config.TelemetryToken,
		})
		shipper.SetBatchMetadata(&telemetry.BatchMetadata{
			MachineID: config.MachineID,
			ToolName:  "mmdbtree-build",
		})
		shipper.Start()
	}

	defer func() {
		if r := recover(); r != nil {
			buildErr = fmt.Errorf("recovered from panic: %v", r)
			logger.Errorf("Recovered from panic in build %s: %v", buildID, r)
		}

		if shipper != nil {
			shipper.SendEvent(telemetry.NewBuildEvent(
				buildID, config.DatabaseType, config.IPVersion, config.RecordSize,
				stats.NodeCount, stats.PayloadKeys, time.Since(start), buildErr,
			))
			if err := shipper.Stop(); err != nil {
				logger.Warnf("telemetry shipper stop: %v", err)
			}
		}
	}()

	var timings map[string]time.Duration
	debugMode := logger.IsDebugEnabled()
	if debugMode {
		timings = make(map[string]time.Duration)
	}

	if err := checkEntitlement(config); err != nil {
		return err
	}

	family := radixtree.Family(config.IPVersion)

	loadStart := time.Now()
	records, err := loadInputRecords(config.InputPath)
	if err != nil {
		return err
	}
	if debugMode {
		timings["load_input"] = time.Since(loadStart)
	}

	buildStart := time.Now()
	tree, err := buildTree(family, config, records)
	if err != nil {
		return err
	}
	if debugMode {
		timings["build_tree"] = time.Since(buildStart)
	}

	if err := tree.Validate(); err != nil {
		return fmt.Errorf("tree failed validation before finalize: %w", err)
	}

	tree.Finalize()
	stats = tree.Stats()

	writeStart := time.Now()
	if err := writeDatabase(config, tree); err != nil {
		return err
	}
	if debugMode {
		timings["write_database"] = time.Since(writeStart)
	}

	tree.Free()

	total := time.Since(start)
	if debugMode {
		var breakdown strings.Builder
		for _, key := range []string{"load_input", "build_tree", "write_database"} {
			if d, ok := timings[key]; ok {
				if breakdown.Len() > 0 {
					breakdown.WriteString(", ")
				}
				fmt.Fprintf(&breakdown, "%s=%v", key, d)
			}
		}
		logger.Debugf("BUILD %s - [%s] total=%v", buildID, breakdown.String(), total)
	}

	logger.Infof("built %s: %d nodes, %d payload keys, %v",
		config.OutputPath, stats.NodeCount, stats.PayloadKeys, total)
	return nil
}

// checkEntitlement enforces the license gate described in
// SPEC_FULL.md §9: a build that wants a record_size above the free tier,
// or a database_type outside the GeoLite2-* namespace, must present a
// valid signed entitlement token.
func checkEntitlement(config *BuildConfig) error {
	needsLicense := config.RecordSize > 24 || !strings.HasPrefix(config.DatabaseType, "GeoLite2-")
	if !needsLicense {
		return nil
	}

	if config.LicenseToken == "" {
		return fmt.Errorf("database_type %q / record_size %d requires a license token", config.DatabaseType, config.RecordSize)
	}

	signingKey := []byte(os.Getenv("MMDBTREE_LICENSE_KEY"))
	entitlement, err := license.Validate(config.LicenseToken, signingKey)
	if err != nil {
		return err
	}
	if !entitlement.AllowsRecordSize(config.RecordSize) {
		return fmt.Errorf("license edition %q does not permit record_size %d", entitlement.Edition, config.RecordSize)
	}
	logger.Infof("license OK: deployment=%s edition=%s", entitlement.DeploymentID, entitlement.Edition)
	return nil
}

func loadInputRecords(path string) ([]inputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input %q: %w", path, err)
	}
	defer f.Close()

	var records []inputRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("parsing input %q: %w", path, err)
	}
	return records, nil
}

// buildTree inserts every input record into a fresh tree, canonicalizing
// each value to a JSON-encoded key so that byte-identical values merge
// into their shared parent per spec.md §4.D's sibling-merge law.
func buildTree(family radixtree.Family, config *BuildConfig, records []inputRecord) (*radixtree.Tree, error) {
	tree, err := radixtree.NewTree(family, config.RecordSize, config.NodesPerAlloc)
	if err != nil {
		return nil, fmt.Errorf("creating tree: %w", err)
	}

	for _, rec := range records {
		address, mask, err := splitCIDR(rec.Prefix)
		if err != nil {
			return nil, fmt.Errorf("prefix %q: %w", rec.Prefix, err)
		}

		network, err := radixtree.Resolve(family, address, mask)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", rec.Prefix, err)
		}

		key, err := canonicalKey(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding value for %q: %w", rec.Prefix, err)
		}

		if err := tree.Insert(network, key, rec.Value); err != nil {
			return nil, fmt.Errorf("inserting %q: %w", rec.Prefix, err)
		}
	}

	if config.AliasIPv4 {
		if err := tree.AliasIPv4Subtree(); err != nil {
			return nil, fmt.Errorf("aliasing v4 subtree: %w", err)
		}
	}
	if config.DeleteReserved {
		if err := tree.DeleteReservedNetworks(); err != nil {
			return nil, fmt.Errorf("deleting reserved networks: %w", err)
		}
	}

	return tree, nil
}

// splitCIDR parses "address/mask" into its two parts. Unlike
// net/netip.ParsePrefix, mask is returned separately so the caller can
// choose whether to route it through radixtree.Resolve's v4-in-v6
// aliasing (Resolve itself takes address and mask apart, per spec.md
// §4.A) rather than a combined prefix type.
func splitCIDR(cidr string) (address string, mask int, err error) {
	idx := strings.LastIndexByte(cidr, '/')
	if idx < 0 {
		return "", 0, fmt.Errorf("missing '/mask'")
	}
	address = cidr[:idx]
	mask, err = strconv.Atoi(cidr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid mask length: %w", err)
	}
	return address, mask, nil
}

// canonicalKey returns a deterministic string identity for value, used
// as the payload key the CORE merges siblings on.
func canonicalKey(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeDatabase finalizes the on-disk layout: search-tree section, the
// 16-byte all-zero separator every data pointer's encoded value already
// accounts for (internal/radixtree's DataSectionSeparatorSize, spec.md
// §4.G/§6.2 — a real reader locates the data section at
// searchTreeSize+16), immediately followed by the data section,
// immediately followed by the metadata section, per spec.md §6.3's
// framing contract (the core writes only the search-tree bytes; this is
// the caller's job).
func writeDatabase(config *BuildConfig, tree *radixtree.Tree) error {
	out, err := os.Create(config.OutputPath)
	if err != nil {
		return fmt.Errorf("creating output %q: %w", config.OutputPath, err)
	}
	defer out.Close()

	data := mmdbdata.NewWriter()
	if err := tree.WriteSearchTree(out, data); err != nil {
		return fmt.Errorf("writing search tree: %w", err)
	}
	if _, err := out.Write(make([]byte, radixtree.DataSectionSeparatorSize)); err != nil {
		return fmt.Errorf("writing data section separator: %w", err)
	}
	if _, err := data.WriteTo(out); err != nil {
		return fmt.Errorf("writing data section: %w", err)
	}

	stats := tree.Stats()
	description := map[string]string{"en": config.Description}
	if config.Description == "" {
		description["en"] = config.DatabaseType
	}

	meta := mmdbdata.Metadata{
		DatabaseType:             config.DatabaseType,
		Description:              description,
		IPVersion:                int(tree.Family()),
		RecordSize:               stats.RecordSize,
		NodeCount:                stats.NodeCount,
		BuildEpoch:               uint64(time.Now().Unix()), //nolint:gosec // Unix time fits in uint64 for the foreseeable future
		Languages:                config.Languages,
		BinaryFormatMajorVersion: 2,
		BinaryFormatMinorVersion: 0,
	}
	if err := (mmdbdata.MetadataWriter{}).Write(out, meta); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}
