// Package admin: handlers.go описывает команды cofishctl.
// Разрушающие команды требуют пароль оператора (--password или COFISH_ADMIN_PASSWORD).
package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// PasswordEnv переменная окружения с паролем оператора.
const PasswordEnv = "COFISH_ADMIN_PASSWORD"

// Provider отдаёт сервис после загрузки конфигурации и открытия хранилища.
type Provider func(cmd *cobra.Command) (*Service, error)

// Handler команды обслуживания.
type Handler struct {
	service  Provider
	password string
}

// NewHandler создаёт обработчик команд.
func NewHandler(p Provider) *Handler {
	return &Handler{service: p}
}

// Commands команды для корневой команды cofishctl.
func (h *Handler) Commands() []*cobra.Command {
	return []*cobra.Command{h.seedCommand(), h.deleteAllCommand(), h.resetPointsCommand(), h.debugCatchCommand()}
}

// authorized открывает сервис и проверяет пароль оператора.
func (h *Handler) authorized(cmd *cobra.Command) (*Service, error) {
	svc, err := h.service(cmd)
	if err != nil {
		return nil, err
	}
	password := h.password
	if password == "" {
		password = os.Getenv(PasswordEnv)
	}
	if err := svc.VerifyOperator(password); err != nil {
		return nil, err
	}
	return svc, nil
}

func (h *Handler) passwordFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&h.password, "password", "", "пароль оператора (или "+PasswordEnv+")")
}

func (h *Handler) seedCommand() *cobra.Command {
	var in SeedInput
	cmd := &cobra.Command{
		Use:   "seed-dummy-catches",
		Short: "Создать тестовые уловы AWARDED вокруг точки",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.UserID == "" && in.Email == "" {
				return fmt.Errorf("нужен --user или --email")
			}
			svc, err := h.authorized(cmd)
			if err != nil {
				return err
			}
			res, err := svc.SeedDummyCatches(cmd.Context(), in)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if len(res.Failures) > 0 {
				return fmt.Errorf("создано %d из %d", len(res.Created), in.Count)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&in.UserID, "user", "u", "", "ID владельца")
	f.StringVarP(&in.Email, "email", "e", "", "email владельца")
	f.Float64Var(&in.Center.Lat, "lat", 0, "широта центра")
	f.Float64Var(&in.Center.Lng, "lng", 0, "долгота центра")
	f.IntVarP(&in.Count, "count", "n", 10, "число уловов")
	f.Float64VarP(&in.RadiusMiles, "radius", "r", 5, "радиус в милях")
	f.StringVar(&in.Species, "species", "", "вид (по умолчанию случайный)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	h.passwordFlag(cmd)
	return cmd
}

func (h *Handler) deleteAllCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete-all-data",
		Short: "Удалить все уловы, покупки и события кармы",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("добавьте --yes для подтверждения")
			}
			svc, err := h.authorized(cmd)
			if err != nil {
				return err
			}
			report, err := svc.DeleteAllData(cmd.Context())
			if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil && err == nil {
				err = printErr
			}
			if err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("не удалено записей: %d", len(report.Failures))
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Балансы не сброшены, используйте reset-user-points")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "подтвердить удаление")
	h.passwordFlag(cmd)
	return cmd
}

func (h *Handler) resetPointsCommand() *cobra.Command {
	var balance, version int64
	cmd := &cobra.Command{
		Use:   "reset-user-points USER_ID",
		Short: "Выставить баланс пользователя",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := h.authorized(cmd)
			if err != nil {
				return err
			}
			u, err := svc.ResetUserPoints(cmd.Context(), args[0], balance, version)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().Int64Var(&balance, "balance", 0, "новый баланс")
	cmd.Flags().Int64Var(&version, "version", 0, "ожидаемая версия записи (0 = без проверки)")
	h.passwordFlag(cmd)
	return cmd
}

func (h *Handler) debugCatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "debug-catch CATCH_ID",
		Short: "Показать запись улова",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := h.service(cmd)
			if err != nil {
				return err
			}
			c, err := svc.DebugCatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), c); err != nil {
				return err
			}
			if c.ThumbnailKey == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "thumbnailKey пуст")
			}
			if _, _, ok := c.Location(); !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "координаты не заданы: улов не участвует в карме и зонах")
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
