package modules

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Luismorlan/familyfeed/engine"
	"github.com/Luismorlan/familyfeed/feed"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

// HydrationPublisher is the feed.Reporter handed to synchronizers. It puts
// every report on the event bus, keeping metric and alert delivery off the
// hydration path.
type HydrationPublisher struct {
	EventBus *gochannel.GoChannel
}

var _ feed.Reporter = (*HydrationPublisher)(nil)

func NewHydrationPublisher(e *gochannel.GoChannel) *HydrationPublisher {
	return &HydrationPublisher{EventBus: e}
}

func (p *HydrationPublisher) ReportHydration(ctx context.Context, report feed.HydrationReport) {
	payload, err := EncodeHydrationReport(report)
	if err != nil {
		Logger.Log.Errorf("fail to encode hydration report of family %s: %s", report.FamilyID, err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.EventBus.Publish(engine.TopicHydrationReport, msg); err != nil {
		Logger.Log.Errorf("fail to publish hydration report of family %s: %s", report.FamilyID, err)
	}
}

func EncodeHydrationReport(report feed.HydrationReport) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"family_id":         report.FamilyID,
		"retained":          report.Retained,
		"evicted":           report.Evicted,
		"eviction_failures": report.EvictionFailures,
		"limit":             report.Limit,
		"over_capacity":     report.OverCapacity,
		"failed":            report.Failed,
		"stale":             report.Stale,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func DecodeHydrationReport(payload []byte) (feed.HydrationReport, error) {
	s := structpb.Struct{}
	if err := proto.Unmarshal(payload, &s); err != nil {
		return feed.HydrationReport{}, errors.Wrap(err, "decode hydration report")
	}
	fields := s.GetFields()
	number := func(key string) int { return int(fields[key].GetNumberValue()) }
	return feed.HydrationReport{
		FamilyID:         fields["family_id"].GetStringValue(),
		Retained:         number("retained"),
		Evicted:          number("evicted"),
		EvictionFailures: number("eviction_failures"),
		Limit:            number("limit"),
		OverCapacity:     fields["over_capacity"].GetBoolValue(),
		Failed:           fields["failed"].GetBoolValue(),
		Stale:            fields["stale"].GetBoolValue(),
	}, nil
}
