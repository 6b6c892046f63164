package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/gregLibert/piv-reader/pkg/cak"
	"github.com/gregLibert/piv-reader/pkg/carddata"
	"github.com/gregLibert/piv-reader/pkg/piv"
	"github.com/gregLibert/piv-reader/pkg/reader"
	"github.com/gregLibert/piv-reader/pkg/transport/pcsc"
)

type options struct {
	readerName string
	list       bool
	pop        bool
	debug      bool
	strict     bool
	showLog    bool
	verbose    bool
	dump       bool
	out        string
	load       string
	wait       time.Duration
	timeout    time.Duration
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run reads a card, or inspects a saved profile, and returns the process exit code.
func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		return 2
	}
	logger := newLogger(opts.verbose)

	// --- 1. Offline modes ---
	if opts.list {
		if err := listReaders(); err != nil {
			logger.WithError(err).Error("listing readers")
			return 1
		}
		return 0
	}
	if opts.load != "" {
		if err := inspectProfile(opts.load, opts.dump); err != nil {
			logger.WithError(err).Error("inspecting card data profile")
			return 1
		}
		return 0
	}

	// --- 2. Hardware Setup ---
	card := &pcsc.Card{
		ReaderName:      opts.readerName,
		WaitTimeout:     opts.wait,
		TransmitTimeout: opts.timeout,
		Logger:          logger,
	}
	defer func() {
		if err := card.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release the card")
		}
	}()

	// --- 3. Read ---
	cfg := reader.DefaultConfig()
	cfg.PoP = opts.pop
	cfg.Debug = opts.debug
	cfg.StrictHistoricalBytes = opts.strict
	cfg.Logger = logger
	if opts.showLog {
		cfg.OnLog = func(line string) { fmt.Println(line) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("\n=============================================")
	fmt.Println(" Waiting for a PIV card...")
	fmt.Println("=============================================")

	r := reader.New(cfg)
	res := <-r.Start(ctx, card)

	fmt.Println("\n=============================================")
	fmt.Printf(" Read finished: %s\n", res.State)
	fmt.Println("=============================================")

	if res.CardData != nil {
		fmt.Println(res.CardData.Describe())
		if opts.dump {
			dumpObjects(res.CardData)
		}
	}

	// --- 4. Persist ---
	if opts.out != "" && res.CardData != nil && res.CardData.Len() > 0 {
		path, err := res.CardData.Save(opts.out)
		if err != nil {
			logger.WithError(err).Error("saving card data profile")
		} else {
			fmt.Printf(">> Card data saved to %s\n", path)
		}
	}

	if res.Err != nil {
		logger.WithError(res.Err).Error("read failed")
		return 1
	}
	return 0
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("piv-reader", flag.ContinueOnError)
	fs.StringVar(&o.readerName, "reader", "", "PC/SC reader name (default: first reader holding a card)")
	fs.BoolVar(&o.list, "list", false, "list the PC/SC readers and exit")
	fs.BoolVar(&o.pop, "pop", true, "run the card authentication key proof of possession")
	fs.BoolVar(&o.debug, "debug", false, "decode the objects read into the log")
	fs.BoolVar(&o.strict, "strict", false, "reject malformed historical bytes")
	fs.BoolVar(&o.showLog, "log", true, "print the trace log while reading")
	fs.BoolVar(&o.verbose, "v", false, "verbose diagnostics on stderr")
	fs.BoolVar(&o.dump, "dump", false, "pretty-print the decoded objects")
	fs.StringVar(&o.out, "out", "", "directory the card data profile is saved in")
	fs.StringVar(&o.load, "load", "", "card data profile to inspect instead of reading a card")
	fs.DurationVar(&o.wait, "wait", 0, "how long to wait for a card (0: forever)")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "timeout of a single card exchange")
	err := fs.Parse(args)
	return o, err
}

// newLogger sends diagnostics to stderr, coloured only when stderr is a terminal.
func newLogger(verbose bool) *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&log.TextFormatter{
		DisableColors: !term.IsTerminal(int(os.Stderr.Fd())),
		FullTimestamp: true,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func listReaders() error {
	readers, err := pcsc.ListReaders()
	if err != nil {
		return err
	}
	if len(readers) == 0 {
		fmt.Println(">> No smart card reader found.")
		return nil
	}
	for i, name := range readers {
		fmt.Printf("[%d] %s\n", i, name)
	}
	return nil
}

// inspectProfile loads a saved profile and verifies its proof of possession offline.
func inspectProfile(path string, dump bool) error {
	data, err := carddata.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf(">> Loaded %s (digest %s)\n", path, data.DigestString())
	fmt.Println(data.Describe())
	if dump {
		dumpObjects(data)
	}
	if tmpl := data.CHUID(); tmpl != nil {
		if chuid, err := tmpl.CHUID(); err == nil {
			verifyCHUID(chuid)
		} else {
			fmt.Printf(">> Problem with CHUID: %v\n", err)
		}
	}

	nonce, sig := data.PoPNonce(), data.PoPSignature()
	tmpl := data.CardAuthCertificate()
	if nonce == nil || sig == nil || tmpl == nil {
		fmt.Println(">> No proof of possession recorded.")
		return nil
	}

	cert, err := tmpl.Certificate()
	if err != nil {
		return fmt.Errorf("card authentication certificate: %w", err)
	}
	ok, err := cak.Verify(cert, nonce, sig, cak.Options{})
	switch {
	case err != nil:
		fmt.Printf(">> Problem with Proof of Possession: %v\n", err)
	case ok:
		fmt.Println(">> Proof of Possession Verified!")
	default:
		fmt.Println(">> Proof of Possession Failed!")
	}
	return nil
}

// verifyCHUID checks the issuer signature of the CHUID and prints its content signer.
func verifyCHUID(chuid *piv.CHUID) {
	fmt.Println(">> Verifying CHUID Signature:")
	signer, ok, err := chuid.VerifySignature()
	if signer != nil {
		fmt.Println("######### BEGIN CONTENT SIGNER ########")
		fmt.Println(piv.DescribeCertificate(signer, time.Now()))
		fmt.Println("######### END CONTENT SIGNER ##########")
	}
	switch {
	case err != nil:
		fmt.Printf(">> Problem with Signature: %v\n", err)
	case ok:
		fmt.Println(">> Signature Verified!")
	default:
		fmt.Println(">> Signature Verification Failed!")
	}
}

// dumpObjects pretty-prints the objects of data that decode to a structure.
func dumpObjects(data *carddata.CardData) {
	if tmpl := data.ApplicationProperty(); tmpl != nil {
		if p, err := piv.ParseApplicationProperty(tmpl.Bytes()); err == nil {
			fmt.Println("--- Application Property Template")
			pretty.Println(p)
		}
	}
	if tmpl := data.CHUID(); tmpl != nil {
		if chuid, err := tmpl.CHUID(); err == nil {
			fmt.Println("--- CHUID")
			pretty.Println(chuid)
		}
	}
	if tmpl := data.CardAuthCertificate(); tmpl != nil {
		if cert, err := tmpl.Certificate(); err == nil {
			fmt.Println("--- Card Authentication Certificate")
			pretty.Println(struct {
				Subject, Issuer string
				Serial          string
				NotBefore       time.Time
				NotAfter        time.Time
				Key             string
			}{
				Subject:   cert.Subject.String(),
				Issuer:    cert.Issuer.String(),
				Serial:    cert.SerialNumber.Text(16),
				NotBefore: cert.NotBefore,
				NotAfter:  cert.NotAfter,
				Key:       piv.KeyDescription(cert),
			})
		}
	}
	if tmpl := data.Discovery(); tmpl != nil {
		if d, err := tmpl.Discovery(); err == nil {
			fmt.Println("--- Discovery Object")
			pretty.Println(d)
			if p, err := d.Policy(); err == nil {
				pretty.Println(p)
			}
		}
	}
	if tmpl := data.PrintedInformation(); tmpl != nil {
		if p, err := tmpl.PrintedInformation(); err == nil {
			fmt.Println("--- Printed Information")
			pretty.Println(p)
		}
	}
	if tmpl := data.KeyHistory(); tmpl != nil {
		if kh, err := tmpl.KeyHistory(); err == nil {
			fmt.Println("--- Key History")
			pretty.Println(kh)
			fmt.Println(data.DescribeRetired(kh))
		}
	}
	if unresolved := data.Unresolved(); len(unresolved) > 0 {
		fmt.Println("--- Keys of unknown type")
		pretty.Println(unresolved)
	}
}
