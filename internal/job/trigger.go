package job

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscrub/internal/model"
)

// PushEnvelope is the body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription,omitempty"`
}

// DecodeTrigger parses raw trigger JSON. Field presence is checked by Run.
func DecodeTrigger(data []byte) (model.Trigger, error) {
	var t model.Trigger
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&t); err != nil {
		return model.Trigger{}, newError(KindMalformedTrigger, "decode trigger", eris.Wrap(err, "unmarshal"))
	}
	return t, nil
}

// DecodePush unwraps a push envelope and decodes the base64 trigger inside.
func DecodePush(body []byte) (model.Trigger, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Trigger{}, newError(KindMalformedTrigger, "decode push envelope", eris.Wrap(err, "unmarshal"))
	}
	if env.Message.Data == "" {
		return model.Trigger{}, newError(KindMalformedTrigger, "decode push envelope", eris.New("empty message data"))
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return model.Trigger{}, newError(KindMalformedTrigger, "decode push envelope", eris.Wrap(err, "base64"))
	}
	return DecodeTrigger(data)
}
