// Package main is the AWS Lambda entry point for the autoscaler:
// one reconcile tick per invocation, triggered by a periodic
// EventBridge rule. Grounded on the original lambda.py handler.
package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/stackguardian/runner-autoscaler/internal/audit"
	"github.com/stackguardian/runner-autoscaler/internal/config"
	applog "github.com/stackguardian/runner-autoscaler/internal/log"
	"github.com/stackguardian/runner-autoscaler/pkg/blobstore"
	"github.com/stackguardian/runner-autoscaler/pkg/cloudscaler"
	"github.com/stackguardian/runner-autoscaler/pkg/controlplane"
	"github.com/stackguardian/runner-autoscaler/pkg/reconciler"
)

// Response mirrors the {statusCode, body} shape the original Python
// handler returned to API Gateway / the Lambda console.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Event is intentionally untyped: the function is invoked on a timer
// schedule and never inspects its payload, matching the original
// handler's unconditional print-and-ignore treatment of event.
type Event map[string]interface{}

func handleRequest(ctx context.Context, event Event) (Response, error) {
	zapLogger, err := applog.New(false)
	if err != nil {
		return Response{StatusCode: 500, Body: err.Error()}, nil
	}
	defer zapLogger.Sync()

	engine, err := buildEngine(zapLogger)
	if err != nil {
		return Response{StatusCode: 500, Body: err.Error()}, nil
	}

	audit.Global().LogAutoscalerStarted(ctx)

	if err := engine.Reconcile(ctx); err != nil {
		applog.LogReconcileError(zapLogger, "lambda_invocation", err)
		audit.Global().LogAutoscalerStopped(ctx, "invocation failed: "+err.Error())
		return Response{StatusCode: 500, Body: err.Error()}, nil
	}

	audit.Global().LogAutoscalerStopped(ctx, "invocation completed")
	return Response{StatusCode: 200, Body: "success"}, nil
}

func buildEngine(zapLogger *zap.Logger) (*reconciler.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	auditLogger := audit.New(&audit.Config{Enabled: true, Logger: zapLogger})
	audit.SetGlobal(auditLogger)

	if cfg.CloudProvider != "aws" {
		return nil, fmt.Errorf("the lambda entry point only supports the aws backend, got %q", cfg.CloudProvider)
	}

	sess, err := session.NewSession(aws.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("build aws session: %w", err)
	}
	store := blobstore.NewS3Store(s3.New(sess), cfg.AWSBucketName)
	scaler := cloudscaler.NewAWSScaler(
		autoscaling.New(sess),
		ec2.New(sess),
		cfg.AWSASGName,
		store,
		cfg.ScaleOutTimestampBlobName,
		cfg.ScaleInTimestampBlobName,
		zapLogger,
	)

	controlPlane := controlplane.NewClient(cfg.BaseURI, cfg.APIKey, cfg.Org, cfg.RunnerGroup, &controlplane.ClientOptions{
		Logger: zapLogger,
	})

	engineCfg := reconciler.Config{
		ScaleOutThreshold: cfg.ScaleOutThreshold,
		ScaleInThreshold:  cfg.ScaleInThreshold,
		ScaleOutStep:      cfg.ScaleOutStep,
		ScaleInStep:       cfg.ScaleInStep,
		MinRunners:        cfg.MinRunners,
		ScaleOutCooldown:  cfg.ScaleOutCooldown,
		ScaleInCooldown:   cfg.ScaleInCooldown,
	}

	return reconciler.New(controlPlane, scaler, engineCfg, auditLogger, zapLogger), nil
}

func main() {
	lambda.Start(handleRequest)
}
