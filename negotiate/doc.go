// Package negotiate implements HTTP Negotiate (SPNEGO) authentication as
// middleware.
//
// A handshake may need several round trips. The Authenticator correlates the
// legs of one handshake by connection or by an issued cookie, keeps the
// pending security context between legs, and lets only one request per key
// work on it at a time. Idle handshakes are released by a periodic sweep.
//
// # Usage
//
//	provider, err := secctx.NewKerberosProvider(secctx.KerberosConfig{
//	    KeytabPath: "/etc/http.keytab",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := negotiate.DefaultConfig()
//	cfg.Provider = provider
//	cfg.UseConnectionKey = true
//
//	auth, err := negotiate.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer auth.Close()
//
//	srv := &http.Server{
//	    Handler:     auth.Middleware(app),
//	    ConnContext: negotiate.ConnContext,
//	}
//
// Handlers read the result with SessionFromContext. A request whose logon
// was rejected reaches the handler without a session.
package negotiate
