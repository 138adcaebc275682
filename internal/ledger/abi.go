package ledger

// arcadeABI covers the subset of the arcade ledger contract this service
// calls. Revert strings used by the contract are the ones Classify knows.
const arcadeABI = `[
	{"type":"function","name":"submitRun","stateMutability":"nonpayable",
	 "inputs":[{"name":"player","type":"address"},{"name":"runId","type":"bytes32"},{"name":"score","type":"uint64"},{"name":"startedAt","type":"uint64"},{"name":"endedAt","type":"uint64"}],
	 "outputs":[]},
	{"type":"function","name":"recordRefill","stateMutability":"nonpayable",
	 "inputs":[{"name":"player","type":"address"},{"name":"newHealth","type":"uint32"}],
	 "outputs":[]},
	{"type":"function","name":"getPlayer","stateMutability":"view",
	 "inputs":[{"name":"player","type":"address"}],
	 "outputs":[{"name":"bestScore","type":"uint64"},{"name":"lastScore","type":"uint64"},{"name":"runs","type":"uint32"},{"name":"lastPlayedAt","type":"uint64"},{"name":"lastRunId","type":"bytes32"}]},
	{"type":"function","name":"getTopPlayers","stateMutability":"view",
	 "inputs":[{"name":"n","type":"uint256"}],
	 "outputs":[{"name":"players","type":"address[]"},{"name":"scores","type":"uint64[]"}]},
	{"type":"function","name":"totalPlayers","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"maxScore","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint64"}]},
	{"type":"event","name":"RunSubmitted","anonymous":false,
	 "inputs":[{"name":"player","type":"address","indexed":true},{"name":"runId","type":"bytes32","indexed":true},{"name":"score","type":"uint64","indexed":false}]},
	{"type":"event","name":"HealthRefilled","anonymous":false,
	 "inputs":[{"name":"player","type":"address","indexed":true},{"name":"newHealth","type":"uint32","indexed":false}]}
]`

// erc20ABI is the slice of ERC-20 needed for balance reads.
const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`
