// Package security builds TLS configurations for opkit transports: the
// model client dialing a provider and the HTTP server hosting pipelines.
//
//	llm:
//	  tls:
//	    ca_file: /etc/opkit/ca.pem
//	server:
//	  tls:
//	    cert_file: /etc/opkit/cert.pem
//	    key_file: /etc/opkit/key.pem
//	    ca_file: /etc/opkit/clients.pem   # require client certificates
package security
