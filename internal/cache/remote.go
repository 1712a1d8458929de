package cache

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// rpcRequest/rpcResponse are the line-delimited JSON framing spoken with
// the cache subprocess, one object per line, carrying base64-encoded chunk
// blobs as string parameters and results. Id
// is a correlation id stamped on every request and echoed back by
// cmd/izb-cached, for matching entries up in either side's logs.
type rpcRequest struct {
	Id     string        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcResponse struct {
	Id     string      `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Remote is a cache tier backed by a cmd/izb-cached subprocess speaking the
// "get"/"put" methods of this protocol over stdin/stdout.
type Remote struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	mu     sync.Mutex
}

// StartRemote launches executable as a subprocess and wires up its
// stdin/stdout for the JSON-RPC line protocol.
func StartRemote(executable string, args ...string) (*Remote, error) {
	cmd := exec.Command(executable, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	return &Remote{cmd: cmd, stdin: stdin, stdout: scanner}, nil
}

func (r *Remote) call(method string, params ...interface{}) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := rpcRequest{Id: uuid.New().String(), Method: method, Params: params}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := r.stdin.Write(append(reqBytes, '\n')); err != nil {
		return nil, err
	}

	if !r.stdout.Scan() {
		if err := r.stdout.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("remote cache: subprocess closed its output")
	}

	var resp rpcResponse
	if err := json.Unmarshal(r.stdout.Bytes(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote cache: %s", resp.Error)
	}
	return resp.Result, nil
}

// Get returns the cached blob for (path, digest), or ok=false on a cache
// miss.
func (r *Remote) Get(path, digest string) ([]byte, bool, error) {
	result, err := r.call("get", path, digest)
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, nil
	}
	encoded, ok := result.(string)
	if !ok {
		return nil, false, fmt.Errorf("remote cache: get returned a non-string result")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *Remote) Put(path, digest string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	_, err := r.call("put", path, digest, encoded)
	return err
}

// Close signals the subprocess to exit by closing its stdin and waits for
// it to finish.
func (r *Remote) Close() error {
	r.stdin.Close()
	return r.cmd.Wait()
}
