package solanarpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"
	"golang.org/x/net/websocket"
)

const readBufferSize = 5 * 1024 * 1024 // 5 MB

type responseCh chan *jsonrpc.RPCResponse

// AccountUpdate is one account notification: the slot the node observed the
// account at and its raw data.
type AccountUpdate struct {
	Slot uint64
	Data []byte
}

// UpdateCh delivers account notifications for one subscription.
type UpdateCh chan AccountUpdate

// WSClient is a JSON-RPC client over a websocket connection to a Solana
// node. Responses are correlated to requests by ID; accountNotification
// frames are routed to their subscription's channel. When the connection
// breaks, every subscription channel is closed and the connection is
// re-dialed with doubling backoff, so subscribers learn they have to
// resubscribe.
type WSClient struct {
	ws *websocket.Conn

	id          uint64
	responsesMx sync.Mutex
	responses   map[int]responseCh

	subscriptionsMx sync.Mutex
	subscriptions   map[int]UpdateCh

	closedMx sync.Mutex
	closed   bool

	log logrus.FieldLogger
}

// Dial connects to a Solana websocket endpoint. A nil log falls back to the
// logrus standard logger.
func Dial(url string, log logrus.FieldLogger) (*WSClient, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ws, err := websocket.Dial(url, "", "http://example.org")
	if err != nil {
		return nil, err
	}

	c := &WSClient{
		ws:            ws,
		responses:     make(map[int]responseCh, 10),
		subscriptions: make(map[int]UpdateCh, 10),
		log:           log,
		// id is zero by default and it's ok
	}
	go c.readingLoop()

	return c, nil
}

// Close tears down the connection. Every subscription channel is closed and
// in-flight requests fail.
func (c *WSClient) Close() error {
	c.closedMx.Lock()
	c.closed = true
	c.closedMx.Unlock()
	return c.ws.Close()
}

func (c *WSClient) isClosed() bool {
	c.closedMx.Lock()
	defer c.closedMx.Unlock()
	return c.closed
}

// dropPending closes every subscription channel and every in-flight response
// channel so their owners stop waiting on a connection that is gone.
func (c *WSClient) dropPending() {
	c.subscriptionsMx.Lock()
	for id, ch := range c.subscriptions {
		close(ch)
		delete(c.subscriptions, id)
	}
	c.subscriptionsMx.Unlock()

	c.responsesMx.Lock()
	for id, ch := range c.responses {
		close(ch)
		delete(c.responses, id)
	}
	c.responsesMx.Unlock()
}

func (c *WSClient) restart() {
	c.dropPending()
	if c.isClosed() {
		return
	}
	c.log.Info("Restarting oracle node connection procedure")

	const maxSleepTime = time.Minute
	sleepTime := time.Second
	for {
		ws, err := websocket.DialConfig(c.ws.Config())
		if err != nil {
			c.log.Errorf("Failed to dial websocket in restart(): %v", err)
			if c.isClosed() {
				return
			}

			// wait some time before the next try
			time.Sleep(sleepTime)
			if sleepTime < maxSleepTime {
				// every time increase the timeout twice until maxSleepTime is reached
				sleepTime = 2 * sleepTime
			}
			continue
		}

		// we don't use an additional mutex for ws
		c.ws = ws
		break
	}

	go c.readingLoop()
}

func (c *WSClient) readingLoop() {
	buff := make([]byte, readBufferSize)
	var writePos int

	for {
		// a message might not fit in one frame, therefore we read data frame
		// by frame until json.Unmarshal stops failing; writePos tracks where
		// the next frame lands in the buffer
		nR, err := c.ws.Read(buff[writePos:])
		if err != nil {
			if !c.isClosed() {
				c.log.Errorf("Failed to read from oracle node websocket: %v", err)
			}
			c.restart()
			return
		}

		response := new(jsonrpc.RPCResponse)
		unmarshalBuff := buff[:writePos+nR]
		err = json.Unmarshal(unmarshalBuff, response)
		if err != nil {
			syntaxErr := new(json.SyntaxError)
			if errors.As(err, &syntaxErr) {
				c.log.Infof(
					"Failed unmarshal jsonrpc response: %v (offset=%d, writePos=%d, nR=%d). Response is too big?",
					syntaxErr.Error(),
					syntaxErr.Offset,
					writePos,
					nR,
				)

				writePos += nR
				continue
			}
			// not a framing problem, the stream cannot be trusted anymore
			c.log.Warningf("Unmarshaling error that caused a reconnect: %v", err)
			c.restart()
			return
		}
		// a complete message was read, the next frame starts a new one
		writePos = 0

		if response.ID == 0 {
			if response.Error != nil {
				c.log.Warning("Received response error for unknown request ", response.Error)
			}
			c.handleNotification(unmarshalBuff)
			continue
		}

		c.responsesMx.Lock()
		if ch, ok := c.responses[response.ID]; ok {
			ch <- response
		} else {
			c.log.Warningf("Can't find response.ID %d in responses map", response.ID)
		}
		c.responsesMx.Unlock()
	}
}

func (c *WSClient) handleNotification(buff []byte) {
	var notification subscriptionNotification
	if err := json.Unmarshal(buff, &notification); err != nil {
		c.log.Info("Failed to decode response as subscription notification")
		return
	}
	if notification.Method != "accountNotification" {
		c.log.Infof("Ignoring notification method %q", notification.Method)
		return
	}

	result := notification.Params.Result
	acc, err := decodeAccountValue(result.Context.Slot, result.Value)
	if err != nil {
		c.log.Warningf("Failed to decode account notification payload: %v", err)
		return
	}

	c.notify(notification.Params.Subscription, AccountUpdate{Slot: acc.Slot, Data: acc.Data})
}

func (c *WSClient) notify(subscription int, update AccountUpdate) {
	c.subscriptionsMx.Lock()
	defer c.subscriptionsMx.Unlock()

	if ch, ok := c.subscriptions[subscription]; ok {
		ch <- update
	}
}

func (c *WSClient) requestID() int {
	return int(atomic.AddUint64(&c.id, 1))
}

func (c *WSClient) registerResponse(requestID int) responseCh {
	ch := make(responseCh)

	c.responsesMx.Lock()
	c.responses[requestID] = ch
	c.responsesMx.Unlock()

	return ch
}

func (c *WSClient) unregisterResponse(requestID int) {
	c.responsesMx.Lock()
	delete(c.responses, requestID)
	c.responsesMx.Unlock()
}

func (c *WSClient) sendRequest(request *jsonrpc.RPCRequest) error {
	buff, err := json.Marshal(request)
	if err != nil {
		return err
	}

	_, err = c.ws.Write(buff)
	return err
}

func (c *WSClient) sendRequestWaitResponse(request *jsonrpc.RPCRequest) (*jsonrpc.RPCResponse, error) {
	ch := c.registerResponse(request.ID)
	defer c.unregisterResponse(request.ID)

	err := c.sendRequest(request)
	if err != nil {
		return nil, err
	}

	response, ok := <-ch
	if !ok {
		// the connection went away before the node answered
		return nil, fmt.Errorf("connection closed before response to request %d", request.ID)
	}

	// additional check in case there is an error in response handling
	if response.ID != request.ID {
		return nil, fmt.Errorf("assert failure: response.ID (%d) != requestID (%d)", response.ID, request.ID)
	}

	if response.Error != nil {
		return nil, response.Error
	}

	return response, nil
}

// SubscribeAccount subscribes to change notifications for one account at the
// given commitment level. Every update carries the account's slot and raw
// data, ready for the pyth decoders. The returned channel is closed when the
// connection restarts or the client is closed; the caller resubscribes after
// that.
func (c *WSClient) SubscribeAccount(key solana.PublicKey, commitment string) (UpdateCh, error) {
	request := jsonrpc.NewRequest("accountSubscribe", key.String(), callOptions{
		Encoding:   encodingBase64,
		Commitment: commitment,
	})
	request.ID = c.requestID()

	response, err := c.sendRequestWaitResponse(request)
	if err != nil {
		return nil, err
	}

	subscription, ok := response.Result.(float64)
	if !ok {
		return nil, fmt.Errorf("unexpected accountSubscribe result %v", response.Result)
	}
	c.log.Infof("Subscription to %q was successful", key)

	ch := make(UpdateCh)
	c.subscriptionsMx.Lock()
	c.subscriptions[int(subscription)] = ch
	c.subscriptionsMx.Unlock()

	return ch, nil
}
