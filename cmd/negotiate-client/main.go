// Command negotiate-client sends requests to a Negotiate-protected server
// and prints the response.
//
// Password can be provided via:
//   - -pass flag (least secure, visible in process list)
//   - NEGOTIATE_PASSWORD environment variable (recommended)
//   - stdin prompt (if neither flag nor env var is set)
//
// Usage:
//
//	negotiate-client -url https://web.example.com/whoami [-mech kerberos|ntlm|sspi]
//
// Examples:
//
//	# Kerberos with the current credential cache
//	negotiate-client -url http://web.example.com:8080/whoami -ccache /tmp/krb5cc_1000 -realm EXAMPLE.COM
//
//	# NTLM with channel binding over TLS
//	export NEGOTIATE_PASSWORD='secret'
//	negotiate-client -url https://web.example.com/whoami -mech ntlm -user 'EXAMPLE\alice' -cbt
//
//	# Windows single sign-on
//	negotiate-client -url http://web.example.com/whoami -mech sspi
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/smnsjas/go-negotiate/initiator"
	ilog "github.com/smnsjas/go-negotiate/internal/log"
)

type options struct {
	mech       string
	user       string
	password   string
	domain     string
	realm      string
	krb5Conf   string
	keytab     string
	ccache     string
	spn        string
	cbt        bool
	insecure   bool
	serverCert *x509.Certificate
	logger     *slog.Logger
}

func main() {
	target := flag.String("url", "", "URL to request")
	method := flag.String("method", http.MethodGet, "HTTP method")
	data := flag.String("data", "", "Request body")
	count := flag.Int("count", 1, "Number of requests to send over the same client")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-request timeout")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (empty = no logging)")

	var o options
	flag.StringVar(&o.mech, "mech", "auto", "Mechanism: auto, kerberos, ntlm, sspi")
	flag.StringVar(&o.user, "user", "", "Username (DOMAIN\\user or user@REALM)")
	flag.StringVar(&o.password, "pass", "", "Password (use NEGOTIATE_PASSWORD env var instead)")
	flag.StringVar(&o.domain, "domain", "", "NTLM domain")
	flag.StringVar(&o.realm, "realm", "", "Kerberos realm (e.g., EXAMPLE.COM)")
	flag.StringVar(&o.krb5Conf, "krb5conf", "", "Path to krb5.conf file")
	flag.StringVar(&o.keytab, "keytab", "", "Path to client keytab")
	flag.StringVar(&o.ccache, "ccache", "", "Path to Kerberos credential cache (default: KRB5CCNAME)")
	flag.StringVar(&o.spn, "spn", "", "Service Principal Name (default: HTTP/<host>)")
	flag.BoolVar(&o.cbt, "cbt", false, "Bind NTLM to the server's TLS certificate (Extended Protection)")
	flag.BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification")
	flag.Parse()

	if *target == "" {
		fmt.Fprintln(os.Stderr, "Error: -url is required")
		flag.Usage()
		os.Exit(1)
	}
	u, err := url.Parse(*target)
	if err != nil {
		fatal(err)
	}

	o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if *logLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
			fatal(fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", *logLevel))
		}
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		o.logger = slog.New(ilog.NewRedactingHandler(h))
	}

	if o.spn == "" {
		o.spn = "HTTP/" + u.Hostname()
	}
	if o.ccache == "" {
		o.ccache = strings.TrimPrefix(os.Getenv("KRB5CCNAME"), "FILE:")
	}
	if o.mech == "auto" {
		o.mech = autoMechanism(o)
	}
	if needsPassword(o) && o.password == "" {
		o.password = getPassword()
	}

	tlsConf := &tls.Config{InsecureSkipVerify: o.insecure}
	if o.cbt && o.mech == "ntlm" {
		if u.Scheme != "https" {
			fatal(errors.New("-cbt requires an https URL"))
		}
		if o.serverCert, err = fetchCertificate(u, tlsConf); err != nil {
			fatal(err)
		}
	}

	newInit, err := initiatorFactory(o)
	if err != nil {
		fatal(err)
	}
	client := &http.Client{
		Transport: &initiator.Transport{
			Base:         &http.Transport{TLSClientConfig: tlsConf, Proxy: http.ProxyFromEnvironment},
			NewInitiator: newInit,
		},
	}

	for i := 0; i < *count; i++ {
		if err := send(client, *method, *target, *data, *timeout); err != nil {
			fatal(err)
		}
	}
}

func send(client *http.Client, method, target, data string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Fprintf(os.Stderr, "%s (%s)\n", resp.Status, time.Since(start).Round(time.Millisecond))
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

// autoMechanism picks SSPI single sign-on when no explicit credentials are
// given on Windows, Kerberos when a ticket source exists, and NTLM otherwise.
func autoMechanism(o options) string {
	switch {
	case o.user == "" && initiator.SupportsSSO():
		return "sspi"
	case o.ccache != "" || o.keytab != "" || o.realm != "":
		return "kerberos"
	default:
		return "ntlm"
	}
}

func needsPassword(o options) bool {
	switch o.mech {
	case "ntlm":
		return true
	case "kerberos":
		return o.keytab == "" && o.ccache == ""
	case "sspi":
		return o.user != ""
	}
	return false
}

func initiatorFactory(o options) (func() (initiator.Initiator, error), error) {
	creds := &initiator.Credentials{Username: o.user, Password: o.password, Domain: o.domain}

	switch o.mech {
	case "kerberos":
		cfg := initiator.KerberosConfig{
			Realm:        o.realm,
			Krb5ConfPath: o.krb5Conf,
			KeytabPath:   o.keytab,
			Logger:       o.logger,
		}
		if o.keytab == "" {
			cfg.CCachePath = o.ccache
		}
		if o.user != "" {
			cfg.Credentials = creds
		}
		if cfg.KeytabPath == "" && cfg.CCachePath == "" && cfg.Credentials == nil {
			return nil, errors.New("kerberos needs -ccache, -keytab, or -user")
		}
		return func() (initiator.Initiator, error) {
			return initiator.NewKerberosInitiator(cfg, o.spn)
		}, nil

	case "ntlm":
		if err := creds.Validate(); err != nil {
			return nil, err
		}
		cfg := initiator.NTLMConfig{Credentials: *creds, ServerCertificate: o.serverCert, Logger: o.logger}
		return func() (initiator.Initiator, error) {
			return initiator.NewNTLMInitiator(cfg)
		}, nil

	case "sspi":
		if !initiator.SupportsSSO() {
			return nil, initiator.ErrSSPIUnavailable
		}
		cfg := initiator.SSPIConfig{Logger: o.logger}
		if o.user != "" {
			cfg.Credentials = creds
		}
		return func() (initiator.Initiator, error) {
			return initiator.NewSSPIInitiator(cfg, o.spn)
		}, nil
	}
	return nil, fmt.Errorf("unknown mechanism %q", o.mech)
}

// fetchCertificate returns the server's leaf certificate for channel binding.
func fetchCertificate(u *url.URL, conf *tls.Config) (*x509.Certificate, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "443")
	}
	conn, err := tls.Dial("tcp", host, conf)
	if err != nil {
		return nil, fmt.Errorf("fetch server certificate: %w", err)
	}
	defer conn.Close()
	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, errors.New("server presented no certificate")
	}
	return certs[0], nil
}

// getPassword returns the password from the environment or prompts for it.
func getPassword() string {
	if envPass := os.Getenv("NEGOTIATE_PASSWORD"); envPass != "" {
		return envPass
	}

	fmt.Fprint(os.Stderr, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		passBytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return ""
		}
		return string(passBytes)
	}

	// Piped input: read one line.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
