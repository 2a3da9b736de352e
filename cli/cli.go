// Package cli implements the dmsxfer command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"dms_transfer/client/comms"
	"dms_transfer/client/transport"
	"dms_transfer/client/worker"
	"dms_transfer/config"
	"dms_transfer/constants"
	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"
	server "dms_transfer/server/controller"

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"
)

type sendArgs struct {
	host, file, relative, offset, length *string
	port                                 *int
}

type receiveArgs struct {
	bind, destRoot *string
	port           *int
}

type serveArgs struct {
	bind, destRoot, config *string
	port                   *int
}

type pushArgs struct {
	sources           *[]string
	host, iface, conf *string
	port              *int
}

// Run parses args (args[0] is the program name), runs the selected command and
// returns the process exit code. Cancelling ctx stops serve and aborts a pending receive.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	parser := argparse.NewParser("dmsxfer", constants.Title)
	logLevels := make(map[*argparse.Command]*string)
	withLogLevel := func(cmd *argparse.Command) {
		logLevels[cmd] = cmd.String("L", "log-level", &argparse.Options{Required: false,
			Help: "Log level (panic, fatal, error, warn, info, debug, trace)", Default: ""})
	}

	sendCmd := parser.NewCommand("send", "Send one byte range of one file to a receiver")
	send := sendArgs{
		host:     sendCmd.String("a", "host", &argparse.Options{Required: true, Help: "Receiver host name or address"}),
		port:     sendCmd.Int("p", "port", &argparse.Options{Required: true, Help: "Receiver port"}),
		file:     sendCmd.String("f", "file", &argparse.Options{Required: true, Help: "Source file"}),
		relative: sendCmd.String("r", "relative-path", &argparse.Options{Required: true, Help: "Destination path below the receiver's root"}),
		offset:   sendCmd.String("o", "offset", &argparse.Options{Required: true, Help: "First byte of the range"}),
		length:   sendCmd.String("l", "length", &argparse.Options{Required: true, Help: "Number of bytes in the range"}),
	}
	withLogLevel(sendCmd)

	receiveCmd := parser.NewCommand("receive", "Accept exactly one range transfer")
	receive := receiveArgs{
		bind: receiveCmd.String("b", "bind", &argparse.Options{Required: false, Help: "Listen on address",
			Default: constants.DEFAULT_BIND}),
		port: receiveCmd.Int("p", "port", &argparse.Options{Required: false, Help: "Listening port, 0 for ephemeral",
			Default: 0}),
		destRoot: receiveCmd.String("d", "dest-root", &argparse.Options{Required: true, Help: "Root path for storing files"}),
	}
	withLogLevel(receiveCmd)

	serveCmd := parser.NewCommand("serve", "Receive chunks from transfer engines until interrupted")
	serve := serveArgs{
		bind:     serveCmd.String("b", "bind", &argparse.Options{Required: false, Help: "Listen on address (default from config)"}),
		port:     serveCmd.Int("p", "port", &argparse.Options{Required: false, Help: "Listening port (default from config)", Default: -1}),
		destRoot: serveCmd.String("d", "dest-root", &argparse.Options{Required: false, Help: "Root path for storing files (default from config)"}),
		config:   serveCmd.String("c", "config", &argparse.Options{Required: false, Help: "TOML config file"}),
	}
	withLogLevel(serveCmd)

	pushCmd := parser.NewCommand("push", "Chunk files and directories and push them to a chunk server")
	push := pushArgs{
		sources: pushCmd.StringList("s", "source", &argparse.Options{Required: true, Help: "File or directory, may be repeated"}),
		host:    pushCmd.String("a", "host", &argparse.Options{Required: true, Help: "Chunk server host name or address"}),
		port:    pushCmd.Int("p", "port", &argparse.Options{Required: false, Help: "Chunk server port (default from config)", Default: -1}),
		iface:   pushCmd.String("i", "iface", &argparse.Options{Required: false, Help: "Interface name reported with the endpoint"}),
		conf:    pushCmd.String("c", "config", &argparse.Options{Required: false, Help: "TOML config file"}),
	}
	withLogLevel(pushCmd)

	configCmd := parser.NewCommand("config", "Print the default configuration")

	commands := map[string]*argparse.Command{
		"send": sendCmd, "receive": receiveCmd, "serve": serveCmd, "push": pushCmd, "config": configCmd,
	}
	if usage, ok := helpRequested(parser, commands, args); ok {
		fmt.Fprint(stdout, usage)
		return 0
	}

	if err := parser.Parse(args); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	logrus.SetOutput(stderr)

	var err error
	switch {
	case sendCmd.Happened():
		err = runSend(ctx, send, *logLevels[sendCmd])
	case receiveCmd.Happened():
		err = runReceive(ctx, receive, *logLevels[receiveCmd], stdout)
	case serveCmd.Happened():
		err = runServe(ctx, serve, *logLevels[serveCmd], stdout)
	case pushCmd.Happened():
		err = runPush(push, *logLevels[pushCmd], stdout)
	case configCmd.Happened():
		err = runConfig(stdout)
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Run",
			"kind":     errorKind(err),
		}).Debug("Command failed")
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// errorKind names the failure class of err for logs
func errorKind(err error) string {
	if kind := errs.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "unclassified"
}

// helpRequested returns the usage of the addressed command when -h or --help
// appears among args.
func helpRequested(parser *argparse.Parser, commands map[string]*argparse.Command, args []string) (string, bool) {
	found := false
	for _, arg := range args[min(1, len(args)):] {
		if arg == "-h" || arg == "--help" {
			found = true
		}
	}
	if !found {
		return "", false
	}
	if len(args) > 1 {
		if cmd, ok := commands[args[1]]; ok {
			return cmd.Usage(nil), true
		}
	}
	return parser.Usage(nil), true
}

// loadConfig loads path and applies a non-empty log level override
func loadConfig(path, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidArgument, "log level", err)
	}
	logrus.SetLevel(level)
	return cfg, nil
}

func dialOptions(cfg *config.Config) networking.DialOptions {
	return networking.DialOptions{
		Timeout:      time.Duration(cfg.Network.DialTimeoutSeconds) * time.Second,
		DSCP:         cfg.Network.DSCP,
		NoDelay:      cfg.Network.NoDelay,
		MultipathTCP: cfg.Network.MultipathTCP,
	}
}

func parseUint(name, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errs.New(errs.ErrInvalidArgument, "--"+name+" must be a non-negative integer", err)
	}
	return n, nil
}

func runSend(ctx context.Context, a sendArgs, logLevel string) error {
	cfg, err := loadConfig("", logLevel)
	if err != nil {
		return err
	}
	offset, err := parseUint("offset", *a.offset)
	if err != nil {
		return err
	}
	length, err := parseUint("length", *a.length)
	if err != nil {
		return err
	}

	return comms.SendRange(ctx, comms.SendOptions{
		Host:         *a.host,
		Port:         *a.port,
		File:         *a.file,
		RelativePath: *a.relative,
		Offset:       offset,
		Length:       length,
		Dial:         dialOptions(cfg),
	})
}

func runReceive(ctx context.Context, a receiveArgs, logLevel string, stdout io.Writer) error {
	if _, err := loadConfig("", logLevel); err != nil {
		return err
	}
	if *a.port < 0 || *a.port > 65535 {
		return errs.Newf(errs.ErrInvalidArgument, "--port %d out of range", *a.port)
	}

	_, err := server.Receive(ctx, server.ReceiveOptions{
		Bind:     *a.bind,
		Port:     *a.port,
		DestRoot: *a.destRoot,
	}, stdout)
	return err
}

func runServe(ctx context.Context, a serveArgs, logLevel string, stdout io.Writer) error {
	cfg, err := loadConfig(*a.config, logLevel)
	if err != nil {
		return err
	}
	if *a.bind != "" {
		cfg.Server.Bind = *a.bind
	}
	if *a.port >= 0 {
		cfg.Server.Port = *a.port
	}
	if *a.destRoot != "" {
		cfg.Server.DestRoot = *a.destRoot
	}
	if cfg.Server.DestRoot == "" {
		return errs.Newf(errs.ErrInvalidArgument, "a destination root is required (--dest-root or Server.DestRoot)")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := server.NewChunkServer(ctx, server.ServerOptions{
		Bind:         cfg.Server.Bind,
		Port:         cfg.Server.Port,
		DestRoot:     cfg.Server.DestRoot,
		IOTimeout:    time.Duration(cfg.Network.DialTimeoutSeconds) * time.Second,
		MultipathTCP: cfg.Network.MultipathTCP,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "PORT=%d\n", s.Port())

	if err := s.Serve(ctx); err != nil {
		return err
	}

	// Report integrity of everything received.
	bufSize := cfg.Transfer.ChunkSizeKB * 1024
	for _, record := range s.Writer().Files() {
		ok, err := s.Writer().Verify(record.RelativePath, fileio.ClampChecksumBuffer(bufSize))
		entry := logrus.WithFields(logrus.Fields{
			"function": "runServe",
			"path":     record.RelativePath,
			"chunks":   record.Chunks,
			"bytes":    record.Bytes,
			"checksum": record.Checksum,
		})
		switch {
		case err != nil:
			entry.WithField("error", err.Error()).Warn("Could not verify file")
		case !ok:
			entry.Warn("Checksum mismatch, file incomplete or corrupted")
		default:
			entry.Info("File verified")
		}
	}
	return nil
}

func runPush(a pushArgs, logLevel string, stdout io.Writer) error {
	cfg, err := loadConfig(*a.conf, logLevel)
	if err != nil {
		return err
	}
	port := cfg.Server.Port
	if *a.port >= 0 {
		port = *a.port
	}
	if port < 1 || port > 65535 {
		return errs.Newf(errs.ErrInvalidArgument, "--port %d out of range", port)
	}

	tcp := transport.NewTCPTransport(dialOptions(cfg), cfg.Network.Compress)
	m, err := worker.NewManager(cfg.Transfer.ChunkSizeKB*1024, cfg.Transfer.Concurrency, tcp)
	if err != nil {
		return err
	}

	endpoint := transport.NetworkEndpoint{Address: *a.host, Port: uint16(port), InterfaceName: *a.iface}
	begin := time.Now()
	ids := make([]string, 0, len(*a.sources))
	for _, source := range *a.sources {
		id, err := m.SubmitJob(worker.TransferJob{Source: source, Destination: endpoint})
		if err != nil {
			m.WaitForCompletion()
			return err
		}
		ids = append(ids, id)
	}
	m.WaitForCompletion()

	failed := 0
	for i, id := range ids {
		state := m.JobState(id)
		if state != worker.Done {
			failed++
		}
		fmt.Fprintf(stdout, "%s %s %s\n", id, (*a.sources)[i], state)
	}

	stats := m.Stats()
	comp, total := tcp.GetChunkStats()
	logrus.WithFields(logrus.Fields{
		"function":      "runPush",
		"elapsed":       time.Since(begin).String(),
		"files":         stats.Files,
		"chunks":        stats.Chunks,
		"failed_chunks": stats.FailedChunks,
		"bytes":         stats.Bytes,
		"compressed":    fmt.Sprintf("%d/%d", comp, total),
	}).Info("Push finished")

	if failed > 0 {
		return errs.Newf(errs.ErrIO, "%d of %d jobs did not complete", failed, len(ids))
	}
	return nil
}

func runConfig(stdout io.Writer) error {
	out, err := config.Bytes(config.Default())
	if err != nil {
		return err
	}
	_, err = stdout.Write(out)
	return err
}
