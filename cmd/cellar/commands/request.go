package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/zerr"
)

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("channel", "", "Channel for targets given without @channel (default: first declared)")
	cmd.Flags().StringSlice("with", nil, "Enable an option on every target that declares it")
	cmd.Flags().StringSlice("without", nil, "Disable an option on every target that declares it")
}

// parseRequest turns "name[@channel][,with-x,without-y]" arguments into a
// request. The --with and --without flags are returned separately; the
// application applies them to the targets that declare each option.
func parseRequest(cmd *cobra.Command, args []string) (domain.Request, domain.OptionSet, error) {
	var req domain.Request

	channel, err := cmd.Flags().GetString("channel")
	if err != nil {
		return req, nil, err
	}
	with, err := cmd.Flags().GetStringSlice("with")
	if err != nil {
		return req, nil, err
	}
	without, err := cmd.Flags().GetStringSlice("without")
	if err != nil {
		return req, nil, err
	}

	flags := make([]string, 0, len(with)+len(without))
	for _, opt := range with {
		flags = append(flags, domain.FormatOptionFlag(opt, true))
	}
	for _, opt := range without {
		flags = append(flags, domain.FormatOptionFlag(opt, false))
	}
	shared, err := domain.ParseOptionFlags(flags)
	if err != nil {
		return req, nil, err
	}

	for _, arg := range args {
		target, err := parseTarget(arg, channel)
		if err != nil {
			return req, nil, err
		}
		req.Targets = append(req.Targets, target)
	}
	return req, shared, nil
}

func parseTarget(arg, defaultChannel string) (domain.Target, error) {
	parts := strings.Split(arg, ",")
	name, ch, found := strings.Cut(parts[0], "@")
	if name == "" || (found && ch == "") {
		return domain.Target{}, zerr.With(zerr.New("invalid target"), "target", arg)
	}
	if !found {
		ch = defaultChannel
	}

	opts, err := domain.ParseOptionFlags(parts[1:])
	if err != nil {
		return domain.Target{}, zerr.With(err, "target", arg)
	}
	return domain.Target{
		Name:    domain.NewInternedString(name),
		Channel: ch,
		Options: opts,
	}, nil
}
