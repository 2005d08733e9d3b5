package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/api"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/config"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

// AddUser creates an account through the running server's admin API and
// prints the generated credentials.
func AddUser(username string, admin bool, cfg *config.Config) error {
	role := models.RoleUser
	if admin {
		role = models.RoleAdmin
	}

	reqBody, err := json.Marshal(api.AddUserRequest{Username: username, Role: role})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nAccount Created Successfully!\n")
	fmt.Printf("Username:  %s\n", result.Username)
	fmt.Printf("Role:      %s\n", role)
	fmt.Printf("Password:  %s\n", result.Password)
	fmt.Printf("\nShare the password over a secure channel; it is shown only once.\n")

	return nil
}
