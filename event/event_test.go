package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTopic(t *testing.T) {
	p := NewPublisher()

	// 1. 成功创建
	err := p.NewTopic(TopicMarkerDetected, time.Second)
	assert.NoError(t, err)

	_, ok := p.topics[TopicMarkerDetected]
	assert.True(t, ok, "topic should be created")

	// 2. 创建已存在的主题
	err = p.NewTopic(TopicMarkerDetected, time.Second)
	assert.ErrorIs(t, err, ErrTopicExists)
}

func TestRegisterSubscriber(t *testing.T) {
	p := NewPublisher()

	// 1. 为不存在的主题注册
	err := p.RegisterSubscriber("non-existent-topic", func(param any) {})
	assert.ErrorIs(t, err, ErrTopicNotFound)

	// 2. 成功注册
	require.NoError(t, p.NewTopic(TopicScanCaptured, time.Second))
	err = p.RegisterSubscriber(TopicScanCaptured, func(param any) {})
	assert.NoError(t, err)
	assert.Len(t, p.topics[TopicScanCaptured].subscribers, 1, "subscriber should be added")
}

func TestPublish(t *testing.T) {
	p := NewPublisher()

	// 1. 向不存在的主题发布
	err := p.Publish("non-existent-topic", 1)
	assert.ErrorIs(t, err, ErrTopicNotFound)

	// 2. 成功发布
	require.NoError(t, p.NewTopic(TopicMarkerDetected, time.Second))

	received := make(map[int]int)
	var mu sync.Mutex
	for id := 1; id <= 2; id++ {
		require.NoError(t, p.RegisterSubscriber(TopicMarkerDetected, func(param any) {
			mu.Lock()
			received[id] = param.(int)
			mu.Unlock()
		}))
	}

	assert.NoError(t, p.Publish(TopicMarkerDetected, 7))

	mu.Lock()
	assert.Equal(t, 7, received[1], "subscriber 1 should receive the message")
	assert.Equal(t, 7, received[2], "subscriber 2 should receive the message")
	mu.Unlock()

	// 3. 没有订阅者
	require.NoError(t, p.NewTopic(TopicScanCaptured, 0))
	assert.NoError(t, p.Publish(TopicScanCaptured, int64(1)))
}

func TestPublishTimeout(t *testing.T) {
	p := NewPublisher()
	require.NoError(t, p.NewTopic(TopicScanCaptured, 20*time.Millisecond))

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.RegisterSubscriber(TopicScanCaptured, func(param any) {
		<-release
	}))

	err := p.Publish(TopicScanCaptured, int64(3))
	assert.ErrorIs(t, err, ErrPublishTimeout)
}

func TestPublishRecoversSubscriberPanic(t *testing.T) {
	p := NewPublisher()
	require.NoError(t, p.NewTopic(TopicMarkerDetected, time.Second))

	var got int
	require.NoError(t, p.RegisterSubscriber(TopicMarkerDetected, func(param any) { panic("boom") }))
	require.NoError(t, p.RegisterSubscriber(TopicMarkerDetected, func(param any) { got = param.(int) }))

	assert.NoError(t, p.Publish(TopicMarkerDetected, 4))
	assert.Equal(t, 4, got)
}
