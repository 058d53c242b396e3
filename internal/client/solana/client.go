package solana

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lalitcap23/defess-v3/internal/reward"
)

const (
	seedCollection = "collection"
	seedWinner     = "winner"
	seedNFT        = "nft"

	// Limits enforced by the program's account sizes.
	maxUsernameLen = 32
	maxPostIDLen   = 64

	maxSeedLen = 32
)

var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// RPC is the subset of the JSON-RPC client the issuer uses.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *sol.Transaction, opts rpc.TransactionOpts) (sol.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...sol.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetAccountInfo(ctx context.Context, account sol.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetBalance(ctx context.Context, account sol.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

type Options struct {
	RPCURL          string
	ProgramID       string
	AuthorityKey    string
	Commitment      string
	ConfirmAttempts uint
	ConfirmDelay    time.Duration
	SkipPreflight   bool
}

// Client talks to the Defess NFT program.
type Client struct {
	RPC    RPC
	Logger *zap.Logger

	programID  sol.PublicKey
	authority  sol.PrivateKey
	commitment rpc.CommitmentType

	confirmAttempts uint
	confirmDelay    time.Duration
	skipPreflight   bool
}

func New(opts Options, logger *zap.Logger) (*Client, error) {
	programID, err := sol.PublicKeyFromBase58(strings.TrimSpace(opts.ProgramID))
	if err != nil {
		return nil, fmt.Errorf("solana program id: %w", err)
	}
	var authority sol.PrivateKey
	if strings.TrimSpace(opts.AuthorityKey) != "" {
		authority, err = ParseAuthorityKey(opts.AuthorityKey)
		if err != nil {
			return nil, err
		}
	}
	rpcURL := strings.TrimSpace(opts.RPCURL)
	if rpcURL == "" {
		rpcURL = rpc.DevNet_RPC
	}
	c := &Client{
		RPC:             rpc.New(rpcURL),
		Logger:          logger,
		programID:       programID,
		authority:       authority,
		commitment:      parseCommitment(opts.Commitment),
		confirmAttempts: opts.ConfirmAttempts,
		confirmDelay:    opts.ConfirmDelay,
		skipPreflight:   opts.SkipPreflight,
	}
	if c.Logger != nil {
		fields := []zap.Field{
			zap.String("rpc", rpcURL),
			zap.String("program_id", programID.String()),
		}
		if c.HasAuthority() {
			fields = append(fields, zap.String("authority", authority.PublicKey().String()))
		}
		c.Logger.Info("solana client initialized", fields...)
	}
	return c, nil
}

// ParseAuthorityKey accepts the 64-byte JSON array produced by solana-keygen,
// or a base58 encoded secret key.
func ParseAuthorityKey(raw string) (sol.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("solana authority key: %w", err)
		}
		if len(ints) != 64 {
			return nil, fmt.Errorf("solana authority key must be a 64-byte array, got %d", len(ints))
		}
		b := make([]byte, 64)
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("solana authority key: byte %d out of range", i)
			}
			b[i] = byte(v)
		}
		return sol.PrivateKey(b), nil
	}
	key, err := sol.PrivateKeyFromBase58(raw)
	if err != nil {
		return nil, fmt.Errorf("solana authority key: %w", err)
	}
	return key, nil
}

func (c *Client) ProgramID() sol.PublicKey { return c.programID }

func (c *Client) HasAuthority() bool { return len(c.authority) == 64 }

func (c *Client) CollectionPDA() (sol.PublicKey, uint8, error) {
	return sol.FindProgramAddress([][]byte{[]byte(seedCollection)}, c.programID)
}

func (c *Client) WinnerPDA(periodStart int64) (sol.PublicKey, uint8, error) {
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(periodStart))
	return sol.FindProgramAddress([][]byte{[]byte(seedWinner), ts}, c.programID)
}

func (c *Client) NFTPDA(postID string) (sol.PublicKey, uint8, error) {
	return sol.FindProgramAddress([][]byte{[]byte(seedNFT), []byte(postID)}, c.programID)
}

func (c *Client) DeriveAddresses(periodStart *int64, postID string) (reward.Addresses, error) {
	var out reward.Addresses
	collection, _, err := c.CollectionPDA()
	if err != nil {
		return out, err
	}
	out.Collection = collection.String()
	if periodStart != nil {
		winner, _, err := c.WinnerPDA(*periodStart)
		if err != nil {
			return out, err
		}
		out.Winner = winner.String()
	}
	if postID != "" {
		if len(postID) > maxSeedLen {
			return out, fmt.Errorf("post id %q exceeds %d seed bytes", postID, maxSeedLen)
		}
		nft, _, err := c.NFTPDA(postID)
		if err != nil {
			return out, err
		}
		out.NFT = nft.String()
	}
	return out, nil
}

type selectPeriodWinnerArgs struct {
	PeriodTimestamp int64
	WinnerUsername  string
	PostID          string
	LikeCount       uint64
}

// anchorDiscriminator is the 8-byte instruction selector Anchor derives from
// the method name.
func anchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

func encodeSelectPeriodWinner(req reward.Request) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(anchorDiscriminator("select_period_winner"))
	err := bin.NewBorshEncoder(buf).Encode(selectPeriodWinnerArgs{
		PeriodTimestamp: req.PeriodStart,
		WinnerUsername:  req.Username,
		PostID:          req.PostID,
		LikeCount:       req.LikeCount,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateRequest(req reward.Request) error {
	switch {
	case req.PeriodStart%1800 != 0:
		return fmt.Errorf("period %d is not aligned to 30 minutes", req.PeriodStart)
	case req.Username == "" || len(req.Username) > maxUsernameLen:
		return fmt.Errorf("invalid username %q", req.Username)
	case req.PostID == "" || len(req.PostID) > maxPostIDLen:
		return fmt.Errorf("invalid post id %q", req.PostID)
	case req.LikeCount == 0:
		return errors.New("like count must be greater than 0")
	}
	return nil
}

// BuildSelectWinnerInstruction assembles select_period_winner with accounts
// [authority, collection, winner, system program].
func (c *Client) BuildSelectWinnerInstruction(req reward.Request) (sol.Instruction, error) {
	if !c.HasAuthority() {
		return nil, errors.New("solana authority key not configured")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	collection, _, err := c.CollectionPDA()
	if err != nil {
		return nil, err
	}
	winner, _, err := c.WinnerPDA(req.PeriodStart)
	if err != nil {
		return nil, err
	}
	data, err := encodeSelectPeriodWinner(req)
	if err != nil {
		return nil, err
	}
	accounts := sol.AccountMetaSlice{
		sol.NewAccountMeta(c.authority.PublicKey(), true, true),
		sol.NewAccountMeta(collection, true, false),
		sol.NewAccountMeta(winner, true, false),
		sol.NewAccountMeta(sol.SystemProgramID, false, false),
	}
	return sol.NewInstruction(c.programID, accounts, data), nil
}

// IssueReward records the period winner on chain and waits for confirmation.
// The program refuses a second winner account for the same period, so a
// repeated call fails with reward.ErrChain.
func (c *Client) IssueReward(ctx context.Context, req reward.Request) (string, error) {
	ix, err := c.BuildSelectWinnerInstruction(req)
	if err != nil {
		return "", reward.ChainError("build instruction", err)
	}

	bh, err := c.RPC.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return "", reward.ChainError("get latest blockhash", err)
	}
	if bh == nil || bh.Value == nil {
		return "", reward.ChainError("get latest blockhash", errors.New("empty result"))
	}

	payer := c.authority.PublicKey()
	tx, err := sol.NewTransaction([]sol.Instruction{ix}, bh.Value.Blockhash, sol.TransactionPayer(payer))
	if err != nil {
		return "", reward.ChainError("build transaction", err)
	}
	if _, err := tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if key.Equals(payer) {
			return &c.authority
		}
		return nil
	}); err != nil {
		return "", reward.ChainError("sign transaction", err)
	}

	sig, err := c.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", reward.ChainError("send transaction", err)
	}
	if c.Logger != nil {
		c.Logger.Info("select_period_winner sent",
			zap.Int64("period", req.PeriodStart),
			zap.String("post_id", req.PostID),
			zap.Uint64("likes", req.LikeCount),
			zap.String("signature", sig.String()),
		)
	}

	if err := c.waitConfirmed(ctx, sig); err != nil {
		return "", reward.ChainError("confirm transaction", &reward.UnconfirmedError{Signature: sig.String(), Err: err})
	}
	return sig.String(), nil
}

var errNotConfirmed = errors.New("transaction not yet confirmed")

type txFailedError struct {
	sig    sol.Signature
	reason any
}

func (e *txFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.sig, e.reason)
}

func (c *Client) waitConfirmed(ctx context.Context, sig sol.Signature) error {
	attempts := c.confirmAttempts
	if attempts == 0 {
		attempts = 20
	}
	delay := c.confirmDelay
	if delay <= 0 {
		delay = time.Second
	}
	return retry.Do(
		func() error {
			res, err := c.RPC.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				return err
			}
			if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
				return errNotConfirmed
			}
			st := res.Value[0]
			if st.Err != nil {
				return retry.Unrecoverable(&txFailedError{sig: sig, reason: st.Err})
			}
			if !commitmentReached(st.ConfirmationStatus, c.commitment) {
				return errNotConfirmed
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if c.Logger != nil && !errors.Is(err, errNotConfirmed) {
				c.Logger.Debug("signature status poll failed", zap.Uint("attempt", n), zap.Error(err))
			}
		}),
	)
}

func commitmentReached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	}
	return false
}

func parseCommitment(s string) rpc.CommitmentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// Health mirrors what the admin dashboard shows about the chain side.
type Health struct {
	Connected             bool            `json:"connected"`
	ProgramExists         bool            `json:"program_exists"`
	CollectionInitialized bool            `json:"collection_initialized"`
	Authority             string          `json:"authority,omitempty"`
	AuthorityBalanceSOL   decimal.Decimal `json:"authority_balance_sol"`
	Error                 string          `json:"error,omitempty"`
}

func (c *Client) Health(ctx context.Context) Health {
	var h Health
	if _, err := c.RPC.GetLatestBlockhash(ctx, c.commitment); err != nil {
		h.Error = err.Error()
		return h
	}
	h.Connected = true

	exists, err := c.accountExists(ctx, c.programID)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.ProgramExists = exists

	collection, _, err := c.CollectionPDA()
	if err != nil {
		h.Error = err.Error()
		return h
	}
	if h.CollectionInitialized, err = c.accountExists(ctx, collection); err != nil {
		h.Error = err.Error()
		return h
	}

	if c.HasAuthority() {
		h.Authority = c.authority.PublicKey().String()
		bal, err := c.AuthorityBalance(ctx)
		if err != nil {
			h.Error = err.Error()
			return h
		}
		h.AuthorityBalanceSOL = bal
	}
	return h
}

func (c *Client) accountExists(ctx context.Context, key sol.PublicKey) (bool, error) {
	info, err := c.RPC.GetAccountInfo(ctx, key)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info != nil && info.Value != nil, nil
}

// AuthorityBalance returns the fee payer's balance in SOL.
func (c *Client) AuthorityBalance(ctx context.Context) (decimal.Decimal, error) {
	if !c.HasAuthority() {
		return decimal.Zero, errors.New("solana authority key not configured")
	}
	res, err := c.RPC.GetBalance(ctx, c.authority.PublicKey(), c.commitment)
	if err != nil {
		return decimal.Zero, err
	}
	if res == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromInt(int64(res.Value)).Div(lamportsPerSOL), nil
}

var (
	_ reward.Issuer         = (*Client)(nil)
	_ reward.AddressDeriver = (*Client)(nil)
)
