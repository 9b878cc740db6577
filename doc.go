// Package negotiate is the root of the go-negotiate module: HTTP Negotiate
// (SPNEGO) authentication for Go servers and clients.
//
// This module provides:
//   - server middleware that runs Kerberos and NTLM handshakes over HTTP
//   - security context providers for Windows SSPI and keytab-based Kerberos
//   - a client RoundTripper that answers Negotiate challenges
//
// # Architecture
//
// The library is organized into layers:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  negotiate/   Middleware, handshake state, sessions     │
//	├─────────────────────────────────────────────────────────┤
//	│  directory/   Account, group and owner lookups          │
//	├─────────────────────────────────────────────────────────┤
//	│  secctx/      Providers: SSPI (Windows), gokrb5         │
//	└─────────────────────────────────────────────────────────┘
//
//	initiator/      Client role: Kerberos, NTLM, SSPI + Transport
//
// # Quick Start
//
//	provider, _ := secctx.NewKerberosProvider(secctx.KerberosConfig{
//	    KeytabPath: "/etc/http.keytab",
//	})
//	cfg := negotiate.DefaultConfig()
//	cfg.Provider = provider
//	auth, _ := negotiate.New(cfg)
//	defer auth.Close()
//
//	http.Handle("/", auth.Middleware(app))
//
// See cmd/negotiate-server and cmd/negotiate-client for complete programs.
package negotiate
