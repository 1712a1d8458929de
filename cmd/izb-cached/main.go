// Command izb-cached is a chunk-cache plugin: a subprocess speaking the
// line-delimited JSON-RPC protocol internal/cache.Remote dials, backing the
// "get" and "put" methods with a DynamoDB table instead of local disk. It is
// meant to be spawned by the izb driver (via izb.mod's cache directive), not
// run interactively.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type pluginRequest struct {
	Id     string        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type pluginResponse struct {
	Id     string      `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func main() {
	region := flag.String("region", "us-east-1", "AWS region the cache table lives in")
	table := flag.String("table", "izb-chunk-cache", "DynamoDB table name")
	flag.Parse()

	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(*region))
	if err != nil {
		fmt.Fprintf(os.Stderr, "izb-cached: failed to load aws config: %v\n", err)
		os.Exit(1)
	}
	client := dynamodb.NewFromConfig(cfg)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req pluginRequest
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(pluginResponse{Error: fmt.Sprintf("parse error: %v", err)})
			continue
		}

		result, err := handleRequest(client, *table, req)
		resp := pluginResponse{Id: req.Id, Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := encoder.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "izb-cached: failed to encode response: %v\n", err)
		}
	}
}

func handleRequest(client *dynamodb.Client, table string, req pluginRequest) (interface{}, error) {
	switch req.Method {
	case "get":
		return handleGet(client, table, req.Params)
	case "put":
		return handlePut(client, table, req.Params)
	default:
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
}

func cacheKey(path, digest string) string { return path + "#" + digest }

func handleGet(client *dynamodb.Client, table string, params []interface{}) (interface{}, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("get expects [path, digest]")
	}
	path, _ := params[0].(string)
	digest, _ := params[1].(string)

	key, err := attributevalue.MarshalMap(map[string]interface{}{"cache_key": cacheKey(path, digest)})
	if err != nil {
		return nil, err
	}

	out, err := client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	var item struct {
		Data string `dynamodbav:"data"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache item: %v", err)
	}
	return item.Data, nil
}

func handlePut(client *dynamodb.Client, table string, params []interface{}) (interface{}, error) {
	if len(params) < 3 {
		return nil, fmt.Errorf("put expects [path, digest, base64Data]")
	}
	path, _ := params[0].(string)
	digest, _ := params[1].(string)
	data, _ := params[2].(string)

	item, err := attributevalue.MarshalMap(map[string]interface{}{
		"cache_key": cacheKey(path, digest),
		"data":      data,
	})
	if err != nil {
		return nil, err
	}

	_, err = client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}
