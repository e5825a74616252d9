package common

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
)

func TestJsonQueue(t *testing.T) {
	t.Run("Reads back written values in order", func(t *testing.T) {
		config := initTestConfig()
		buffer := NewCappedBuffer(config, 1024)
		writer := NewJsonQueueWriter(buffer)
		reader := NewJsonQueueReader(buffer)

		for _, name := range []string{"first", "second"} {
			err := writer.Write(map[string]interface{}{"name": name, "value": 42})
			if err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}
		writer.Close()

		for _, expectedName := range []string{"first", "second"} {
			var result map[string]interface{}
			_, err := reader.Read(&result)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if result["name"] != expectedName {
				t.Errorf("Expected name %s, got %v", expectedName, result["name"])
			}
			if result["value"] != json.Number("42") {
				t.Errorf("Expected value 42, got %v", result["value"])
			}
		}

		var result map[string]interface{}
		_, err := reader.Read(&result)
		if err != io.EOF {
			t.Errorf("Expected EOF after the last value, got %v", err)
		}
	})

	t.Run("Returns the writer's close error after draining", func(t *testing.T) {
		config := initTestConfig()
		buffer := NewCappedBuffer(config, 1024)
		writer := NewJsonQueueWriter(buffer)
		reader := NewJsonQueueReader(buffer)
		producerErr := errors.New("provider unavailable")

		writer.Write("only")
		writer.CloseWithError(producerErr)

		var value string
		_, err := reader.Read(&value)
		if err != nil || value != "only" {
			t.Fatalf("Expected to read the buffered value, got %q (%v)", value, err)
		}

		_, err = reader.Read(&value)
		if !errors.Is(err, producerErr) {
			t.Errorf("Expected the producer error, got %v", err)
		}
	})
}
