// Package web3 holds the chain facing types of the AskWorld agent: the YAML
// contract definitions, the decoded contract records and the Client
// interface implemented by the EVM adapter in the ethereum sub-package.
package web3
