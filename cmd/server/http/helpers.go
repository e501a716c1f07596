package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

func getRoot(rw http.ResponseWriter, req *http.Request) {
	buf, err := json.Marshal(map[string]string{
		"name": "conveyor",
	})
	if err != nil {
		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusOK)
	rw.Write(buf)
}

// writeErrResp writes the error as a JSON body with the given status.
func writeErrResp(rw http.ResponseWriter, err error, status int) {
	buf, merr := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	if merr != nil {
		logger.WithError(merr).Error("unable to marshal error response")

		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(status)
	rw.Write(buf)
}

// sendWithBackoff keeps trying to put the message on the channel,
// backing off between attempts. The queue consumer may be slow or
// temporarily gone; dropping the message is the last resort.
func sendWithBackoff(logger *logrus.Entry, ch chan<- []byte, msg []byte) {
	backoff := 100 * time.Millisecond

	for i := 0; i < 5; i++ {
		select {
		case ch <- msg:
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	logger.Warn("giving up sending message to queue")
}
