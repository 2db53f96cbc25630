package cloudscaler

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/autoscaling/autoscalingiface"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"go.uber.org/zap"

	"github.com/stackguardian/runner-autoscaler/pkg/blobstore"
	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

// AWSScaler implements CloudScaler against an AWS Auto Scaling Group.
// Grounded on the original aws_service.py: describe the ASG, resolve
// its instances via EC2, and correlate a Runner to an instance by exact
// match on PrivateDnsName.
type AWSScaler struct {
	asgClient autoscalingiface.AutoScalingAPI
	ec2Client ec2iface.EC2API
	asgName   string
	logger    *zap.Logger

	cooldownLedger
}

// NewAWSScaler builds an AWSScaler for the named Auto Scaling Group,
// persisting cooldown timestamps under the given blob names in store.
func NewAWSScaler(asgClient autoscalingiface.AutoScalingAPI, ec2Client ec2iface.EC2API, asgName string, store blobstore.BlobStore, scaleOutBlobName, scaleInBlobName string, logger *zap.Logger) *AWSScaler {
	return &AWSScaler{
		asgClient:      asgClient,
		ec2Client:      ec2Client,
		asgName:        asgName,
		logger:         logger,
		cooldownLedger: newCooldownLedger(store, scaleOutBlobName, scaleInBlobName),
	}
}

func (s *AWSScaler) describeASG(ctx context.Context) (*autoscaling.Group, error) {
	out, err := s.asgClient.DescribeAutoScalingGroupsWithContext(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []*string{aws.String(s.asgName)},
	})
	if err != nil {
		return nil, fmt.Errorf("cloudscaler(aws): describe asg %s: %w", s.asgName, err)
	}
	if len(out.AutoScalingGroups) == 0 {
		return nil, fmt.Errorf("cloudscaler(aws): auto scaling group %s not found", s.asgName)
	}
	return out.AutoScalingGroups[0], nil
}

func (s *AWSScaler) describeInstances(ctx context.Context, group *autoscaling.Group) ([]*ec2.Instance, error) {
	if len(group.Instances) == 0 {
		return nil, nil
	}

	ids := make([]*string, 0, len(group.Instances))
	for _, inst := range group.Instances {
		ids = append(ids, inst.InstanceId)
	}

	out, err := s.ec2Client.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids})
	if err != nil {
		return nil, fmt.Errorf("cloudscaler(aws): describe instances: %w", err)
	}

	instances := make([]*ec2.Instance, 0, len(ids))
	for _, reservation := range out.Reservations {
		instances = append(instances, reservation.Instances...)
	}
	return instances, nil
}

func (s *AWSScaler) ListMembers(ctx context.Context) ([]CloudVM, error) {
	group, err := s.describeASG(ctx)
	if err != nil {
		return nil, err
	}

	instances, err := s.describeInstances(ctx, group)
	if err != nil {
		return nil, err
	}

	members := make([]CloudVM, 0, len(instances))
	for _, inst := range instances {
		members = append(members, CloudVM{
			Hostname:             aws.StringValue(inst.PrivateDnsName),
			ProtectedFromScaleIn: instanceProtected(group, inst),
		})
	}
	return members, nil
}

func instanceProtected(group *autoscaling.Group, inst *ec2.Instance) bool {
	for _, member := range group.Instances {
		if aws.StringValue(member.InstanceId) == aws.StringValue(inst.InstanceId) {
			return aws.BoolValue(member.ProtectedFromScaleIn)
		}
	}
	return false
}

func (s *AWSScaler) SetDesiredCapacity(ctx context.Context, n int) error {
	_, err := s.asgClient.SetDesiredCapacityWithContext(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(s.asgName),
		DesiredCapacity:      aws.Int64(int64(n)),
	})
	if err != nil {
		return fmt.Errorf("cloudscaler(aws): set desired capacity %d: %w", n, err)
	}
	return nil
}

func (s *AWSScaler) findInstanceID(ctx context.Context, r runner.Runner) (string, bool, bool, error) {
	group, err := s.describeASG(ctx)
	if err != nil {
		return "", false, false, err
	}
	instances, err := s.describeInstances(ctx, group)
	if err != nil {
		return "", false, false, err
	}
	for _, inst := range instances {
		if aws.StringValue(inst.PrivateDnsName) == r.ComputerName {
			return aws.StringValue(inst.InstanceId), instanceProtected(group, inst), true, nil
		}
	}
	return "", false, false, nil
}

func (s *AWSScaler) setInstanceProtection(ctx context.Context, r runner.Runner, protect bool) error {
	instanceID, protected, found, err := s.findInstanceID(ctx, r)
	if err != nil {
		return err
	}
	if !found {
		s.logger.Warn("cloudscaler(aws): no matching VM for runner, skipping protection toggle",
			zap.String("runnerID", r.RunnerID), zap.String("computerName", r.ComputerName))
		return nil
	}
	if protected == protect {
		return nil
	}

	_, err = s.asgClient.SetInstanceProtectionWithContext(ctx, &autoscaling.SetInstanceProtectionInput{
		AutoScalingGroupName: aws.String(s.asgName),
		InstanceIds:          []*string{aws.String(instanceID)},
		ProtectedFromScaleIn: aws.Bool(protect),
	})
	if err != nil {
		return fmt.Errorf("cloudscaler(aws): set instance protection %s=%v: %w", instanceID, protect, err)
	}
	return nil
}

func (s *AWSScaler) AddScaleInProtection(ctx context.Context, r runner.Runner) error {
	return s.setInstanceProtection(ctx, r, true)
}

func (s *AWSScaler) RemoveScaleInProtection(ctx context.Context, r runner.Runner) error {
	return s.setInstanceProtection(ctx, r, false)
}

func (s *AWSScaler) CountExistingVMs(ctx context.Context) (int, error) {
	group, err := s.describeASG(ctx)
	if err != nil {
		return 0, err
	}
	return len(group.Instances), nil
}
