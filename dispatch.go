package modkit

import (
	"context"
	"strconv"
	"strings"
)

// Operation names a request the service can dispatch.
type Operation string

const (
	OpRegister        Operation = "register"
	OpChangeNickname  Operation = "change_nickname"
	OpBlock           Operation = "block"
	OpUnblock         Operation = "unblock"
	OpPromote         Operation = "promote"
	OpDemote          Operation = "demote"
	OpWarn            Operation = "warn"
	OpUnWarn          Operation = "un_warn"
	OpCreateCommand   Operation = "create_command"
	OpUpdateCommand   Operation = "update_command"
	OpDeleteCommand   Operation = "delete_command"
	OpUseCommand      Operation = "use_command"
	OpGetAccount      Operation = "get_account"
	OpFindAccount     Operation = "find_account"
	OpGetCommand      Operation = "get_command"
	OpListCommands    Operation = "list_commands"
	OpGetUserCommands Operation = "get_user_commands"
	OpGetAction       Operation = "get_action"
	OpGetActions      Operation = "get_actions"
	OpGetUserActions  Operation = "get_user_actions"
)

// Argument keys understood by Dispatch.
const (
	ArgName        = "name"
	ArgAction      = "action"
	ArgDisplayName = "display_name"
	ArgHandle      = "handle"
	ArgID          = "id"
	ArgKind        = "kind"
	ArgPage        = "page"
	ArgPageSize    = "page_size"
)

// Request is the normalized call shape produced by the transport layer: ids
// already resolved from mentions or replies, plus string arguments.
type Request struct {
	ActorID   int64             `json:"actor_id"`
	TargetID  *int64            `json:"target_id,omitempty"`
	Operation Operation         `json:"operation"`
	Args      map[string]string `json:"args,omitempty"`
}

// Result carries whatever the dispatched operation produced.
type Result struct {
	RequestID   string       `json:"request_id"`
	Account     *Account     `json:"account,omitempty"`
	Command     *Command     `json:"command,omitempty"`
	Commands    []Command    `json:"commands,omitempty"`
	Action      *AuditEntry  `json:"action,omitempty"`
	Actions     []AuditEntry `json:"actions,omitempty"`
	AutoBlocked bool         `json:"auto_blocked,omitempty"`
}

// Dispatch routes req to the matching service operation. A request id is
// attached to ctx when none is present so every audit entry of the call can be
// correlated. Malformed requests fail with ErrInvalidRequest.
func (s *Service) Dispatch(ctx context.Context, req Request) (*Result, error) {
	requestID := GetRequestID(ctx)
	if requestID == "" {
		requestID = NewRequestID()
		ctx = WithRequestID(ctx, requestID)
	}
	res := &Result{RequestID: requestID}

	page, err := req.page()
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case OpRegister:
		res.Account, err = s.Register(ctx, req.ActorID, req.optional(ArgHandle), req.Args[ArgDisplayName])

	case OpChangeNickname:
		var target int64
		if target, err = req.target(); err == nil {
			res.Account, err = s.ChangeNickname(ctx, req.ActorID, target, req.Args[ArgDisplayName])
		}

	case OpBlock, OpUnblock, OpPromote, OpDemote, OpUnWarn:
		var target int64
		if target, err = req.target(); err == nil {
			res.Account, err = s.roleOp(req.Operation)(ctx, req.ActorID, target)
		}

	case OpWarn:
		var target int64
		if target, err = req.target(); err == nil {
			res.Account, res.AutoBlocked, err = s.Warn(ctx, req.ActorID, target)
		}

	case OpCreateCommand:
		var name string
		if name, err = req.required(ArgName); err == nil {
			res.Command, err = s.CreateCommand(ctx, req.ActorID, name, req.Args[ArgAction])
		}

	case OpUpdateCommand:
		var name string
		if name, err = req.required(ArgName); err == nil {
			res.Command, err = s.UpdateCommand(ctx, req.ActorID, name, req.Args[ArgAction])
		}

	case OpDeleteCommand:
		var name string
		if name, err = req.required(ArgName); err == nil {
			err = s.DeleteCommand(ctx, req.ActorID, name)
		}

	case OpUseCommand:
		var name string
		if name, err = req.required(ArgName); err == nil {
			res.Command, err = s.UseCommand(ctx, req.ActorID, name)
		}

	case OpGetAccount:
		id := req.ActorID
		if req.TargetID != nil {
			id = *req.TargetID
		}
		res.Account, err = s.GetAccount(ctx, id)

	case OpFindAccount:
		var handle string
		if handle, err = req.required(ArgHandle); err == nil {
			res.Account, err = s.FindAccountByHandle(ctx, handle)
		}

	case OpGetCommand:
		var name string
		if name, err = req.required(ArgName); err == nil {
			res.Command, err = s.GetCommand(ctx, name)
		}

	case OpListCommands:
		res.Commands, err = s.ListCommands(ctx, page)

	case OpGetUserCommands:
		id := req.ActorID
		if req.TargetID != nil {
			id = *req.TargetID
		}
		res.Commands, err = s.GetUserCommands(ctx, id, page)

	case OpGetAction:
		var id int64
		if id, err = req.int64Arg(ArgID); err == nil {
			res.Action, err = s.GetAction(ctx, id)
		}

	case OpGetActions:
		filter := NewActionFilter().WithPage(page).WithKind(ActionKind(req.Args[ArgKind]))
		if req.TargetID != nil {
			filter = filter.WithAccount(*req.TargetID)
		}
		res.Actions, err = s.GetActions(ctx, filter)

	case OpGetUserActions:
		id := req.ActorID
		if req.TargetID != nil {
			id = *req.TargetID
		}
		res.Actions, err = s.GetUserActions(ctx, id, page)

	default:
		err = NewError(ErrInvalidRequest, "unknown operation "+string(req.Operation))
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) roleOp(op Operation) func(context.Context, int64, int64) (*Account, error) {
	switch op {
	case OpBlock:
		return s.Block
	case OpUnblock:
		return s.Unblock
	case OpPromote:
		return s.Promote
	case OpDemote:
		return s.Demote
	}
	return s.UnWarn
}

func (r Request) target() (int64, error) {
	if r.TargetID == nil {
		return 0, NewError(ErrInvalidRequest, string(r.Operation)+" requires a target").WithActor(r.ActorID)
	}
	return *r.TargetID, nil
}

func (r Request) required(key string) (string, error) {
	v := strings.TrimSpace(r.Args[key])
	if v == "" {
		return "", NewError(ErrInvalidRequest, string(r.Operation)+" requires "+key).WithActor(r.ActorID)
	}
	return v, nil
}

func (r Request) optional(key string) *string {
	v, ok := r.Args[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func (r Request) int64Arg(key string) (int64, error) {
	v, err := r.required(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, NewError(ErrInvalidRequest, key+" must be an integer").WithCause(err)
	}
	return n, nil
}

func (r Request) page() (Page, error) {
	var p Page
	for key, dst := range map[string]*int{ArgPage: &p.Index, ArgPageSize: &p.Size} {
		v, ok := r.Args[key]
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Page{}, NewError(ErrInvalidRequest, key+" must be a non-negative integer")
		}
		*dst = n
	}
	if p.Index > MaxPageIndex {
		return Page{}, NewError(ErrInvalidRequest, ArgPage+" must not exceed "+strconv.Itoa(MaxPageIndex))
	}
	return p, nil
}
