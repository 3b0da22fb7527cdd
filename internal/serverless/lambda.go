// Package serverless adapts the Slack events handler to AWS Lambda behind an
// API Gateway HTTP API.
package serverless

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// LambdaHandler is the function signature Lambda invokes for HTTP API (v2)
// payloads.
type LambdaHandler func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// NewLambdaHandler converts each API Gateway event to an *http.Request for h
// and the recorded response back to an API Gateway response.
func NewLambdaHandler(h http.Handler) LambdaHandler {
	adapter := httpadapter.NewV2(h)
	return adapter.ProxyWithContext
}

// StartLambda blocks serving invocations. It never returns under Lambda.
func StartLambda(h http.Handler) {
	lambda.Start(NewLambdaHandler(h))
}
