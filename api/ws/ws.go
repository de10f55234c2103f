// Package ws is the devnet's WebSocket transport: it upgrades connections
// on the same port as the JSON-RPC endpoint, handles the
// starknet_subscribe*/starknet_unsubscribe method family itself (those
// need per-socket context the stateless dispatcher cannot carry), and
// forwards every other method to the ordinary jsonrpc.Server so a socket
// can also issue plain reads and writes.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	devnetrpc "github.com/NethermindEth/starknet-devnet-go/api/rpc"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/subscription"
	"github.com/NethermindEth/starknet-devnet-go/utils"
	"nhooyr.io/websocket"
)

// outBuffer is the per-socket notification queue depth; a socket that
// falls further behind than this loses the lagging subscription rather
// than blocking the block producer.
const outBuffer = 64

// Server handles one WebSocket endpoint.
type Server struct {
	rpc    *jsonrpc.Server
	devnet *devnetrpc.Devnet
	bus    *subscription.Bus
	log    utils.SimpleLogger
}

func New(rpcServer *jsonrpc.Server, devnet *devnetrpc.Devnet, bus *subscription.Bus, log utils.SimpleLogger) *Server {
	return &Server{rpc: rpcServer, devnet: devnet, bus: bus, log: log}
}

// ServeHTTP upgrades the connection and runs the socket's read loop until
// the peer closes; closing cancels every subscription the socket owns.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Debugw("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	out := make(chan subscription.Notification, outBuffer)
	socketID := s.bus.Connect(func(n subscription.Notification) bool {
		select {
		case out <- n:
			return true
		default:
			return false
		}
	})
	defer s.bus.Disconnect(socketID)

	writeCtx, cancelWrites := context.WithCancel(ctx)
	defer cancelWrites()
	go s.writeLoop(writeCtx, conn, out)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if resp := s.handleMessage(socketID, data); resp != nil {
			if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan subscription.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-out:
			payload, err := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"method":  n.Method,
				"params": map[string]any{
					"subscription_id": n.SubscriptionID,
					"result":          n.Result,
				},
			})
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
	}
}

// wsRequest is the subset of the JSON-RPC envelope the subscription
// methods need; anything else is re-dispatched verbatim.
type wsRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *Server) handleMessage(socketID string, data []byte) []byte {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return mustMarshalResponse(nil, nil, &jsonrpc.Error{Code: jsonrpc.InvalidJSON, Message: "Parse error"})
	}

	switch req.Method {
	case "starknet_subscribeNewHeads":
		return s.subscribe(socketID, req, subscription.KindNewHeads)
	case "starknet_subscribeEvents":
		return s.subscribeEvents(socketID, req)
	case "starknet_subscribeTransactionStatus":
		return s.subscribeTxStatus(socketID, req)
	case "starknet_subscribePendingTransactions":
		id, _ := s.bus.Register(socketID, subscription.Subscription{Kind: subscription.KindPendingTransactions})
		return mustMarshalResponse(req.ID, id, nil)
	case "starknet_unsubscribe":
		return s.unsubscribe(socketID, req)
	default:
		resp, err := s.rpc.Handle(data)
		if err != nil {
			s.log.Errorw("websocket dispatch failed", "method", req.Method, "err", err)
			return nil
		}
		return resp
	}
}

// subscribeParams covers the optional bounds the subscribe methods accept.
type subscribeParams struct {
	BlockID         *devnetrpc.BlockID `json:"block_id"`
	TransactionHash string             `json:"transaction_hash"`
	FromAddress     string             `json:"from_address"`
	Keys            [][]string         `json:"keys"`
}

func decodeParams(raw json.RawMessage) (subscribeParams, error) {
	var p subscribeParams
	if len(raw) == 0 {
		return p, nil
	}
	err := json.Unmarshal(raw, &p)
	return p, err
}

// subscribe registers a NewHeads interest. A pre_confirmed bound is
// rejected: only sealed heads notify.
func (s *Server) subscribe(socketID string, req wsRequest, kind subscription.Kind) []byte {
	p, err := decodeParams(req.Params)
	if err != nil {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "Invalid Params", Data: err.Error()})
	}
	sub := subscription.Subscription{Kind: kind}
	if p.BlockID != nil {
		if p.BlockID.Tag == devnetrpc.TagPreConfirmed {
			return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: devnetrpc.CodeBlockNotFound, Message: "Block not found"})
		}
		number, rerr := s.devnet.ResolveBlockID(*p.BlockID)
		if rerr != nil {
			return mustMarshalResponse(req.ID, nil, rerr)
		}
		sub.BlockID = &number
	}
	id, ok := s.bus.Register(socketID, sub)
	if !ok {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal Error"})
	}
	return mustMarshalResponse(req.ID, id, nil)
}

func (s *Server) subscribeEvents(socketID string, req wsRequest) []byte {
	p, err := decodeParams(req.Params)
	if err != nil {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "Invalid Params", Data: err.Error()})
	}
	if p.BlockID != nil && p.BlockID.Tag == devnetrpc.TagPreConfirmed {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: devnetrpc.CodeBlockNotFound, Message: "Block not found"})
	}
	sub := subscription.Subscription{Kind: subscription.KindEvents}
	if p.FromAddress != "" {
		addr, ferr := felt.FromHex(p.FromAddress)
		if ferr != nil {
			return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "Invalid Params", Data: ferr.Error()})
		}
		sub.Filter.Address = addr
	}
	for _, accepted := range p.Keys {
		row := make([]*felt.Felt, 0, len(accepted))
		for _, k := range accepted {
			f, ferr := felt.FromHex(k)
			if ferr != nil {
				return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "Invalid Params", Data: ferr.Error()})
			}
			row = append(row, f)
		}
		sub.Filter.Keys = append(sub.Filter.Keys, row)
	}
	id, ok := s.bus.Register(socketID, sub)
	if !ok {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal Error"})
	}
	return mustMarshalResponse(req.ID, id, nil)
}

func (s *Server) subscribeTxStatus(socketID string, req wsRequest) []byte {
	p, err := decodeParams(req.Params)
	if err != nil {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "Invalid Params", Data: err.Error()})
	}
	hash, ferr := felt.FromHex(p.TransactionHash)
	if ferr != nil {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "Invalid Params", Data: ferr.Error()})
	}
	id, ok := s.bus.Register(socketID, subscription.Subscription{Kind: subscription.KindTransactionStatus, TxHash: hash})
	if !ok {
		return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal Error"})
	}
	return mustMarshalResponse(req.ID, id, nil)
}

func (s *Server) unsubscribe(socketID string, req wsRequest) []byte {
	var p struct {
		SubscriptionID uint64 `json:"subscription_id"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		// Positional form: [id]
		var arr []uint64
		if err := json.Unmarshal(req.Params, &arr); err != nil || len(arr) != 1 {
			return mustMarshalResponse(req.ID, nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "Invalid Params"})
		}
		p.SubscriptionID = arr[0]
	}
	return mustMarshalResponse(req.ID, s.bus.Unregister(socketID, p.SubscriptionID), nil)
}

func mustMarshalResponse(id, result any, rpcErr *jsonrpc.Error) []byte {
	body := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		body["error"] = rpcErr
	} else {
		body["result"] = result
	}
	out, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal Error"}}`)
	}
	return out
}
