// Package secctx is the boundary between the Negotiate middleware and the
// platform security provider that performs the actual Kerberos or NTLM work.
//
// # Providers
//
//   - SSPI: Windows Security Support Provider Interface (github.com/alexbrainman/sspi).
//     Supports Negotiate, Kerberos and NTLM packages, multi-leg handshakes,
//     and resolves the client's SID and token groups.
//   - Kerberos: pure Go keytab acceptor (github.com/jcmturner/gokrb5/v8) for
//     every platform. Kerberos over SPNEGO completes in a single leg; the PAC
//     supplies SID, groups and display name when DecodePAC is enabled.
//
// # Handles
//
// Native security contexts are OS-level resources. Providers hand them out as
// *ContextHandle values allocated from an Arena. A handle is released with
// exactly one call to Release; later calls return ErrReleased and never reach
// the provider. Credentials follow the same rule through Credential.Free.
//
// # Usage
//
//	p, err := secctx.NewKerberosProvider(secctx.KerberosConfig{
//	    KeytabPath: "/etc/http.keytab",
//	    DecodePAC:  true,
//	})
//	cred, err := p.AcquireCredential(ctx, secctx.MechanismNegotiate, "HTTP/web.example.com")
//	res, err := p.AcceptContext(ctx, cred, nil, token)
package secctx
