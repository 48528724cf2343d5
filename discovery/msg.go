// Package discovery implements UDP-based peer discovery: a server that
// answers Hello datagrams with its own public address, and a client that
// broadcasts Hello to a set of targets and collects Welcome responses.
package discovery

import "encoding/json"

// Hello is sent by a client to announce itself and request a Welcome.
type Hello struct {
	PubAddress string `json:"pub_address"`
}

// Welcome is sent by a server in response to a Hello.
type Welcome struct {
	PubAddress string `json:"pub_address"`
}

// ErrMsg is sent by a server that cannot answer a Hello.
type ErrMsg struct {
	Message string `json:"error_message"`
}

type helloEnvelope struct {
	Hello *Hello `json:"Hello,omitempty"`
}

type responseEnvelope struct {
	Welcome *Welcome `json:"Welcome,omitempty"`
	Error   *ErrMsg  `json:"Error,omitempty"`
}

func encodeHello(h Hello) ([]byte, error) {
	return json.Marshal(helloEnvelope{Hello: &h})
}

func decodeHello(data []byte) (Hello, error) {
	var env helloEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Hello{}, err
	}
	if env.Hello == nil {
		return Hello{}, errNotHello
	}
	return *env.Hello, nil
}

func encodeWelcome(w Welcome) ([]byte, error) {
	return json.Marshal(responseEnvelope{Welcome: &w})
}

func encodeErrMsg(e ErrMsg) ([]byte, error) {
	return json.Marshal(responseEnvelope{Error: &e})
}

func decodeResponse(data []byte) (*Welcome, *ErrMsg, error) {
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, err
	}
	if env.Welcome == nil && env.Error == nil {
		return nil, nil, errNotResponse
	}
	return env.Welcome, env.Error, nil
}
