package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	baseURL        = "http://localhost:8080"
	numAccounts    = 50         // Number of cash accounts to create
	numTransfers   = 5000       // Total number of transfers
	maxConcurrency = 100        // Maximum number of concurrent requests
	initialBalance = 10000      // Initial balance for each account
	maxAmount      = 500        // Maximum transfer amount
	successColor   = "\033[32m" // Green
	errorColor     = "\033[31m" // Red
	infoColor      = "\033[34m" // Blue
	resetColor     = "\033[0m"  // Reset color
)

type CashAccount struct {
	Number           string          `json:"number"`
	Username         string          `json:"username"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

type transferResult struct {
	State    string `json:"state"`
	Transfer struct {
		ID     string          `json:"id"`
		Amount decimal.Decimal `json:"amount"`
		Fee    decimal.Decimal `json:"fee"`
	} `json:"transfer"`
}

func main() {
	fmt.Printf("%sstarting a heavy load test with %d accounts and %d transfers%s\n",
		infoColor, numAccounts, numTransfers, resetColor)

	accounts := createAccounts(numAccounts)
	if len(accounts) < 2 {
		fmt.Printf("%sneed at least two accounts, got %d%s\n", errorColor, len(accounts), resetColor)
		return
	}
	fmt.Printf("%sCreated %d accounts%s\n", successColor, len(accounts), resetColor)

	initialTotal := decimal.Zero
	for _, a := range accounts {
		initialTotal = initialTotal.Add(a.AvailableBalance)
	}

	// Create semaphore for limiting concurrency
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	startTime := time.Now()
	successCount := 0
	errorCount := 0
	feesCharged := decimal.Zero
	var mu sync.Mutex

	fmt.Printf("%slaunching %d transfers with max concurrency of %d%s\n",
		infoColor, numTransfers, maxConcurrency, resetColor)

	for i := 0; i < numTransfers; i++ {
		wg.Add(1)
		sem <- struct{}{} // Acquire semaphore

		go func(n int) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore

			from := accounts[rand.Intn(len(accounts))]
			to := accounts[rand.Intn(len(accounts))]
			amount := decimal.NewFromInt(int64(1 + rand.Intn(maxAmount*100))).Shift(-2)

			res, err := createTransfer(from, to, amount)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errorCount++
				if n%100 == 0 { // Only log some failures
					fmt.Printf("%sTransfer failed: %v%s\n", errorColor, err, resetColor)
				}
				return
			}
			successCount++
			feesCharged = feesCharged.Add(res.Transfer.Fee)
			if n%500 == 0 {
				fmt.Printf("%sTransfer %d: %s from %s to %s (id: %s)%s\n",
					successColor, n, amount.StringFixed(2), from.Number, to.Number, res.Transfer.ID, resetColor)
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Printf("\n%s=== heavy load Test Results ===%s\n", infoColor, resetColor)
	fmt.Printf("Total number of transfers: %d\n", numTransfers)
	fmt.Printf("Successful: %s%d (%.1f%%)%s\n",
		successColor, successCount, float64(successCount)/float64(numTransfers)*100, resetColor)
	fmt.Printf("Failed: %s%d (%.1f%%)%s\n",
		errorColor, errorCount, float64(errorCount)/float64(numTransfers)*100, resetColor)
	fmt.Printf("Duration: %.2f seconds\n", duration.Seconds())
	fmt.Printf("Throughput: %.2f transfers/second\n", float64(numTransfers)/duration.Seconds())

	fmt.Printf("\n%sChecking final account balances...%s\n", infoColor, resetColor)
	checkConservation(accounts, initialTotal, feesCharged)
}

// createAccounts onboards one customer per cash account
func createAccounts(count int) []CashAccount {
	accounts := make([]CashAccount, 0, count)

	for i := 0; i < count; i++ {
		username := "load-" + uuid.NewString()[:8]
		if err := post("/accounts", map[string]string{"username": username}, http.StatusCreated, nil, nil); err != nil {
			fmt.Printf("%sFailed to create customer: %v%s\n", errorColor, err, resetColor)
			continue
		}

		var account CashAccount
		req := map[string]any{
			"number":          fmt.Sprintf("LT-%s", uuid.NewString()[:12]),
			"username":        username,
			"initial_balance": decimal.NewFromInt(initialBalance),
		}
		if err := post("/cash-accounts", req, http.StatusCreated, nil, &account); err != nil {
			fmt.Printf("%sFailed to create cash account: %v%s\n", errorColor, err, resetColor)
			continue
		}

		accounts = append(accounts, account)
		if i%10 == 0 || i == count-1 {
			fmt.Printf("%screated account %d/%d: %s with balance %s%s\n",
				successColor, i+1, count, account.Number, account.AvailableBalance.StringFixed(2), resetColor)
		}
	}

	return accounts
}

// createTransfer commits a transfer without review
func createTransfer(from, to CashAccount, amount decimal.Decimal) (*transferResult, error) {
	reqBody := map[string]any{
		"from_account":    from.Number,
		"to_account":      to.Number,
		"description":     "load test",
		"amount":          amount,
		"requires_review": false,
	}

	var res transferResult
	setUser := func(r *http.Request) { r.Header.Set("X-Username", from.Username) }
	if err := post("/transfers", reqBody, http.StatusCreated, setUser, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func post(path string, body any, want int, mutate func(*http.Request), out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d, body: %s", path, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

// getBalance retrieves the current balance of a cash account
func getBalance(number string) (decimal.Decimal, error) {
	resp, err := http.Get(fmt.Sprintf("%s/accounts/%s/balance", baseURL, number))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("failed to get balance, status: %d, body: %s", resp.StatusCode, string(b))
	}

	var out CashAccount
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %v", err)
	}
	return out.AvailableBalance, nil
}

// checkConservation compares the money left in the accounts with the money
// put in minus the fees charged. Any difference is a lost update.
func checkConservation(accounts []CashAccount, initialTotal, fees decimal.Decimal) {
	finalTotal := decimal.Zero
	for _, a := range accounts {
		balance, err := getBalance(a.Number)
		if err != nil {
			fmt.Printf("%sError retrieving account %s: %v%s\n", errorColor, a.Number, err, resetColor)
			return
		}
		finalTotal = finalTotal.Add(balance)
	}

	expected := initialTotal.Sub(fees)
	fmt.Printf("  Initial total: %s, fees charged: %s\n", initialTotal.StringFixed(2), fees.StringFixed(2))
	fmt.Printf("  Expected total: %s, final total: %s\n", expected.StringFixed(2), finalTotal.StringFixed(2))

	if finalTotal.Equal(expected) {
		fmt.Printf("%sBalances are conserved%s\n", successColor, resetColor)
		return
	}
	fmt.Printf("%sDrift of %s detected; run the API with LOCK_BALANCE_ROWS=true to serialize balance updates%s\n",
		errorColor, finalTotal.Sub(expected).StringFixed(2), resetColor)
}
