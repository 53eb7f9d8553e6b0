package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
)

// PublishAPI is the subset of the IoT data plane client used here.
type PublishAPI interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// IoTDispatcher publishes alerts as JSON to an AWS IoT MQTT topic, e.g. for
// barrier controllers or signage subscribed to the topic.
type IoTDispatcher struct {
	client PublishAPI
	topic  string
}

func NewIoTDispatcher(client PublishAPI, topic string) *IoTDispatcher {
	return &IoTDispatcher{client: client, topic: topic}
}

func (d *IoTDispatcher) Send(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrDispatch, err)
	}

	_, err = d.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(d.topic),
		Payload: payload,
		Qos:     1,
	})
	if err != nil {
		return fmt.Errorf("%w: iot publish to %s: %v", ErrDispatch, d.topic, err)
	}
	return nil
}
